package factory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/rtcingest"
	"github.com/opd-ai/rtcingest/av"
	"github.com/opd-ai/rtcingest/av/rtp"
	"github.com/opd-ai/rtcingest/container/flv"
	"github.com/opd-ai/rtcingest/container/ts"
	"github.com/opd-ai/rtcingest/interfaces"
	"github.com/opd-ai/rtcingest/media"
	"github.com/opd-ai/rtcingest/testing"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinTickInterval is the shortest allowed publisher timer period.
	MinTickInterval = 10 * time.Millisecond
	// MaxTickInterval is the longest allowed publisher timer period.
	MaxTickInterval = 10 * time.Second
	// MaxKeyframeInterval is the largest allowed number of ticks between keyframe requests.
	MaxKeyframeInterval = 1000
	// MinJitterMaxDelay is the shortest time a gap may hold back packets.
	MinJitterMaxDelay = time.Millisecond
	// MaxJitterDepth is the largest allowed reorder window in packets.
	MaxJitterDepth = 32768
)

// ErrNoOutputs indicates a real sink set without any output to write to.
var ErrNoOutputs = errors.New("no container output configured")

// Config selects between recording and simulated sinks and carries the
// publisher configuration applied to sessions built from the factory.
type Config struct {
	UseSimulation bool
	Publisher     av.Config
}

// Outputs names the destinations of real sinks.
type Outputs struct {
	// FLV receives an FLV byte stream when set.
	FLV io.Writer
	// TS receives an MPEG-TS byte stream of the video track when set.
	TS io.Writer

	HasVideo bool
	HasAudio bool

	Room      interfaces.RoomSink
	Transport interfaces.ControlTransport
}

// Sinks is a collaborator set for a session. Only the members matching the
// factory mode are set.
type Sinks struct {
	interfaces.SinkConfig

	FLV *flv.Recorder
	TS  *ts.Recorder

	Room      *testing.RecordingRoom
	Recording *testing.RecordingContainer
	Control   *testing.SimulatedControlTransport
}

// Close stops the recorders. Underlying writers are not closed.
func (s *Sinks) Close() error {
	var errs []error
	if s.FLV != nil {
		errs = append(errs, s.FLV.Close())
	}
	if s.TS != nil {
		errs = append(errs, s.TS.Close())
	}
	return errors.Join(errs...)
}

// MultiContainer hands every container packet to each of its sinks in order.
type MultiContainer []interfaces.ContainerSink

// OnContainerPacket implements interfaces.ContainerSink.
func (m MultiContainer) OnContainerPacket(room, user string, streamKind media.StreamKind, pkt *media.Packet) {
	for _, sink := range m {
		sink.OnContainerPacket(room, user, streamKind, pkt)
	}
}

// SinkFactory creates session collaborators based on configuration.
// It is safe for concurrent use.
type SinkFactory struct {
	mu            sync.RWMutex
	defaultConfig *Config
}

// NewSinkFactory creates a factory with default configuration, overridden
// by RTCINGEST_* environment variables.
func NewSinkFactory() *SinkFactory {
	config := createDefaultConfig()
	applyEnvironmentOverrides(config)
	logConfigurationInfo(config)

	return &SinkFactory{defaultConfig: config}
}

func createDefaultConfig() *Config {
	return &Config{
		UseSimulation: false,
		Publisher:     av.DefaultConfig(),
	}
}

// applyEnvironmentOverrides updates config from environment variables.
// Unparseable or out-of-range values are logged and ignored.
func applyEnvironmentOverrides(config *Config) {
	parseBoolSetting("RTCINGEST_USE_SIMULATION", &config.UseSimulation)
	parseBoolSetting("RTCINGEST_REPEAT_SEQUENCE_HEADER", &config.Publisher.RepeatSequenceHeader)
	parseDurationSetting("RTCINGEST_TICK_INTERVAL", MinTickInterval, MaxTickInterval, &config.Publisher.TickInterval)
	parseDurationSetting("RTCINGEST_JITTER_MAX_DELAY", MinJitterMaxDelay, MaxTickInterval, &config.Publisher.JitterMaxDelay)
	parseIntSetting("RTCINGEST_KEYFRAME_INTERVAL", 1, MaxKeyframeInterval, &config.Publisher.KeyframeInterval)
	parseIntSetting("RTCINGEST_JITTER_DEPTH", rtp.MinJitterDepth, MaxJitterDepth, &config.Publisher.JitterDepth)
}

func parseBoolSetting(envVar string, target *bool) {
	s := os.Getenv(envVar)
	if s == "" {
		return
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseBoolSetting",
			"env_var":     envVar,
			"value":       s,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	*target = v
}

func parseDurationSetting(envVar string, min, max time.Duration, target *time.Duration) {
	s := os.Getenv(envVar)
	if s == "" {
		return
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseDurationSetting",
			"env_var":     envVar,
			"value":       s,
			"error":       err.Error(),
			"using_value": target.String(),
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if v < min || v > max {
		logrus.WithFields(logrus.Fields{
			"function":    "parseDurationSetting",
			"env_var":     envVar,
			"value":       v.String(),
			"min":         min.String(),
			"max":         max.String(),
			"using_value": target.String(),
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*target = v
}

func parseIntSetting(envVar string, min, max int, target *int) {
	s := os.Getenv(envVar)
	if s == "" {
		return
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     envVar,
			"value":       s,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if v < min || v > max {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     envVar,
			"value":       v,
			"min":         min,
			"max":         max,
			"using_value": *target,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*target = v
}

func logConfigurationInfo(config *Config) {
	logrus.WithFields(logrus.Fields{
		"function":          "NewSinkFactory",
		"use_simulation":    config.UseSimulation,
		"tick_interval":     config.Publisher.TickInterval.String(),
		"keyframe_interval": config.Publisher.KeyframeInterval,
		"jitter_depth":      config.Publisher.JitterDepth,
		"jitter_max_delay":  config.Publisher.JitterMaxDelay.String(),
	}).Info("Created sink factory with configuration")
}

// CreateSinks creates collaborators for the current mode. In simulation mode
// out is ignored and every collaborator records in memory.
//
// Parameters:
//   - out: recorder destinations, room and control transport for real mode
//
// Returns:
//   - *Sinks: collaborator set, to be closed after the session
//   - error: ErrNoOutputs or a recorder error
func (f *SinkFactory) CreateSinks(out Outputs) (*Sinks, error) {
	if f.IsUsingSimulation() {
		return f.CreateSimulationForTesting(), nil
	}

	if out.FLV == nil && out.TS == nil {
		return nil, ErrNoOutputs
	}

	sinks := &Sinks{}
	var containers MultiContainer
	if out.FLV != nil {
		rec, err := flv.NewRecorder(out.FLV, out.HasVideo, out.HasAudio)
		if err != nil {
			return nil, fmt.Errorf("failed to create flv recorder: %w", err)
		}
		sinks.FLV = rec
		containers = append(containers, rec)
	}
	if out.TS != nil {
		rec, err := ts.NewRecorder(out.TS)
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("failed to create ts recorder: %w", err)
		}
		sinks.TS = rec
		containers = append(containers, rec)
	}

	sinks.SinkConfig = interfaces.SinkConfig{
		Room:      out.Room,
		Container: containers,
		Transport: out.Transport,
	}

	logrus.WithFields(logrus.Fields{
		"function": "SinkFactory.CreateSinks",
		"type":     "real",
		"flv":      sinks.FLV != nil,
		"ts":       sinks.TS != nil,
	}).Info("Created recording sinks")
	return sinks, nil
}

// CreateSimulationForTesting creates in-memory collaborators regardless of mode.
func (f *SinkFactory) CreateSimulationForTesting() *Sinks {
	sinks := &Sinks{
		Room:      testing.NewRecordingRoom(),
		Recording: testing.NewRecordingContainer(),
		Control:   testing.NewSimulatedControlTransport(),
	}
	sinks.SinkConfig = interfaces.SinkConfig{
		Room:      sinks.Room,
		Container: sinks.Recording,
		Transport: sinks.Control,
	}

	logrus.WithFields(logrus.Fields{
		"function": "SinkFactory.CreateSimulationForTesting",
		"type":     "simulation",
	}).Info("Created simulation sinks")
	return sinks
}

// NewOptions returns session options with the factory's publisher
// configuration and the collaborators of sinks.
func (f *SinkFactory) NewOptions(sinks *Sinks) *rtcingest.Options {
	options := rtcingest.NewOptions()
	options.Config = f.GetCurrentConfig().Publisher
	if sinks != nil {
		options.Room = sinks.SinkConfig.Room
		options.Container = sinks.SinkConfig.Container
		options.Transport = sinks.SinkConfig.Transport
		options.Relay = sinks.SinkConfig.Relay
	}
	return options
}

// SwitchToSimulation makes CreateSinks return in-memory collaborators.
func (f *SinkFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to simulation mode")
	f.defaultConfig.UseSimulation = true
}

// SwitchToReal makes CreateSinks return recorders.
func (f *SinkFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToReal",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to real mode")
	f.defaultConfig.UseSimulation = false
}

// GetCurrentConfig returns a copy of the current configuration.
func (f *SinkFactory) GetCurrentConfig() *Config {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c := *f.defaultConfig
	return &c
}

// IsUsingSimulation returns true if the factory is configured for simulation.
func (f *SinkFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig.UseSimulation
}

// UpdateConfig validates and replaces the factory configuration.
func (f *SinkFactory) UpdateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := config.Publisher.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":          "UpdateConfig",
		"old_simulation":    f.defaultConfig.UseSimulation,
		"new_simulation":    config.UseSimulation,
		"old_tick_interval": f.defaultConfig.Publisher.TickInterval.String(),
		"new_tick_interval": config.Publisher.TickInterval.String(),
	}).Info("Updating factory configuration")

	c := *config
	f.defaultConfig = &c
	return nil
}

package factory

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opd-ai/rtcingest"
	"github.com/opd-ai/rtcingest/av"
	"github.com/opd-ai/rtcingest/media"
)

func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RTCINGEST_USE_SIMULATION",
		"RTCINGEST_TICK_INTERVAL",
		"RTCINGEST_KEYFRAME_INTERVAL",
		"RTCINGEST_JITTER_DEPTH",
		"RTCINGEST_JITTER_MAX_DELAY",
		"RTCINGEST_REPEAT_SEQUENCE_HEADER",
	} {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
		}
	}
}

// TestNewSinkFactory verifies default factory creation
func TestNewSinkFactory(t *testing.T) {
	clearEnvironment(t)
	f := NewSinkFactory()

	config := f.GetCurrentConfig()
	if config.UseSimulation {
		t.Error("expected real mode by default")
	}
	if config.Publisher != av.DefaultConfig() {
		t.Errorf("expected default publisher config, got %+v", config.Publisher)
	}
}

// TestEnvironmentVariableParsing verifies environment variable handling
func TestEnvironmentVariableParsing(t *testing.T) {
	tests := []struct {
		name      string
		envKey    string
		envValue  string
		checkFunc func(*Config) bool
	}{
		{"simulation_true", "RTCINGEST_USE_SIMULATION", "true", func(c *Config) bool { return c.UseSimulation }},
		{"simulation_garbage", "RTCINGEST_USE_SIMULATION", "maybe", func(c *Config) bool { return !c.UseSimulation }},
		{"tick_interval", "RTCINGEST_TICK_INTERVAL", "250ms", func(c *Config) bool { return c.Publisher.TickInterval == 250*time.Millisecond }},
		{"tick_interval_too_short", "RTCINGEST_TICK_INTERVAL", "1ms", func(c *Config) bool { return c.Publisher.TickInterval == 500*time.Millisecond }},
		{"tick_interval_garbage", "RTCINGEST_TICK_INTERVAL", "soon", func(c *Config) bool { return c.Publisher.TickInterval == 500*time.Millisecond }},
		{"keyframe_interval", "RTCINGEST_KEYFRAME_INTERVAL", "10", func(c *Config) bool { return c.Publisher.KeyframeInterval == 10 }},
		{"keyframe_interval_zero", "RTCINGEST_KEYFRAME_INTERVAL", "0", func(c *Config) bool { return c.Publisher.KeyframeInterval == 6 }},
		{"jitter_depth", "RTCINGEST_JITTER_DEPTH", "64", func(c *Config) bool { return c.Publisher.JitterDepth == 64 }},
		{"jitter_depth_too_small", "RTCINGEST_JITTER_DEPTH", "2", func(c *Config) bool { return c.Publisher.JitterDepth == 256 }},
		{"jitter_max_delay", "RTCINGEST_JITTER_MAX_DELAY", "1s", func(c *Config) bool { return c.Publisher.JitterMaxDelay == time.Second }},
		{"jitter_max_delay_zero", "RTCINGEST_JITTER_MAX_DELAY", "0s", func(c *Config) bool { return c.Publisher.JitterMaxDelay == 300*time.Millisecond }},
		{"repeat_header", "RTCINGEST_REPEAT_SEQUENCE_HEADER", "1", func(c *Config) bool { return c.Publisher.RepeatSequenceHeader }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvironment(t)
			t.Setenv(tt.envKey, tt.envValue)

			config := NewSinkFactory().GetCurrentConfig()
			if !tt.checkFunc(config) {
				t.Errorf("%s=%s produced %+v", tt.envKey, tt.envValue, config)
			}
		})
	}
}

// TestEnvironmentBoundsBuildSessions checks that every accepted boundary
// value still yields a configuration a session can be built from.
func TestEnvironmentBoundsBuildSessions(t *testing.T) {
	tests := []struct {
		envKey   string
		envValue string
	}{
		{"RTCINGEST_JITTER_MAX_DELAY", "0s"},
		{"RTCINGEST_JITTER_MAX_DELAY", "-5ms"},
		{"RTCINGEST_JITTER_MAX_DELAY", "1ms"},
		{"RTCINGEST_TICK_INTERVAL", "10ms"},
		{"RTCINGEST_KEYFRAME_INTERVAL", "1"},
		{"RTCINGEST_JITTER_DEPTH", "3"},
		{"RTCINGEST_JITTER_DEPTH", "32768"},
	}

	for _, tt := range tests {
		t.Run(tt.envKey+"="+tt.envValue, func(t *testing.T) {
			clearEnvironment(t)
			t.Setenv(tt.envKey, tt.envValue)

			f := NewSinkFactory()
			session, err := rtcingest.New(f.NewOptions(nil))
			if err != nil {
				t.Fatalf("New failed with %s=%s: %v", tt.envKey, tt.envValue, err)
			}
			session.Close()
		})
	}
}

func TestCreateSinksReal(t *testing.T) {
	clearEnvironment(t)
	f := NewSinkFactory()

	if _, err := f.CreateSinks(Outputs{}); !errors.Is(err, ErrNoOutputs) {
		t.Fatalf("expected ErrNoOutputs, got %v", err)
	}

	var flvOut, tsOut bytes.Buffer
	sinks, err := f.CreateSinks(Outputs{FLV: &flvOut, TS: &tsOut, HasVideo: true})
	if err != nil {
		t.Fatalf("CreateSinks failed: %v", err)
	}
	defer sinks.Close()

	if sinks.FLV == nil || sinks.TS == nil {
		t.Fatal("expected both recorders")
	}
	if sinks.Room != nil || sinks.Control != nil {
		t.Error("real sinks must not carry simulated collaborators")
	}
	if containers, ok := sinks.SinkConfig.Container.(MultiContainer); !ok || len(containers) != 2 {
		t.Errorf("expected two container sinks, got %T", sinks.SinkConfig.Container)
	}
	if flvOut.Len() == 0 {
		t.Error("expected flv file header to be written")
	}
}

func TestCreateSinksSimulation(t *testing.T) {
	clearEnvironment(t)
	f := NewSinkFactory()
	f.SwitchToSimulation()
	if !f.IsUsingSimulation() {
		t.Fatal("expected simulation mode")
	}

	sinks, err := f.CreateSinks(Outputs{})
	if err != nil {
		t.Fatalf("CreateSinks failed: %v", err)
	}
	if sinks.Room == nil || sinks.Recording == nil || sinks.Control == nil {
		t.Fatal("expected simulated collaborators")
	}
	if err := sinks.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	f.SwitchToReal()
	if f.IsUsingSimulation() {
		t.Error("expected real mode")
	}
}

func TestUpdateConfig(t *testing.T) {
	clearEnvironment(t)
	f := NewSinkFactory()

	if err := f.UpdateConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	bad := &Config{Publisher: av.DefaultConfig()}
	bad.Publisher.TickInterval = 0
	if err := f.UpdateConfig(bad); !errors.Is(err, av.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	good := &Config{UseSimulation: true, Publisher: av.DefaultConfig()}
	good.Publisher.KeyframeInterval = 3
	if err := f.UpdateConfig(good); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	good.Publisher.KeyframeInterval = 99

	if got := f.GetCurrentConfig().Publisher.KeyframeInterval; got != 3 {
		t.Errorf("expected stored copy with interval 3, got %d", got)
	}
}

// TestSessionFromFactory drives a session built from simulated sinks.
func TestSessionFromFactory(t *testing.T) {
	clearEnvironment(t)
	f := NewSinkFactory()
	config := f.GetCurrentConfig()
	config.Publisher.KeyframeInterval = 1
	if err := f.UpdateConfig(config); err != nil {
		t.Fatal(err)
	}

	sinks := f.CreateSimulationForTesting()
	options := f.NewOptions(sinks)
	tp := &fakeClock{now: time.Unix(1700000000, 0)}
	options.TimeProvider = tp

	session, err := rtcingest.New(options)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer session.Close()

	_, err = session.AddTrackInfo(media.Route{Room: "r", User: "u"}, av.TrackInfo{
		Media:     "video",
		ClockRate: 90000,
		Codecs:    []av.CodecInfo{{PayloadType: 102, Name: "H264"}},
		SSRCs:     []uint32{0x1000},
	})
	if err != nil {
		t.Fatalf("AddTrackInfo failed: %v", err)
	}

	tp.now = tp.now.Add(config.Publisher.TickInterval)
	session.Iterate()

	plis := sinks.Control.PictureLossIndications()
	if len(plis) != 1 {
		t.Fatalf("expected 1 keyframe request, got %d", len(plis))
	}
	if plis[0].MediaSSRC != 0x1000 {
		t.Errorf("expected media ssrc 0x1000, got %#x", plis[0].MediaSSRC)
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

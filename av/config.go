package av

import (
	"fmt"
	"time"

	"github.com/opd-ai/rtcingest/av/rtp"
)

// Config holds the tunables of a publisher.
type Config struct {
	// TickInterval is the period of the publisher timer.
	TickInterval time.Duration
	// KeyframeInterval is the number of ticks between periodic keyframe requests.
	KeyframeInterval int
	// JitterDepth is the reorder window size in packets.
	JitterDepth int
	// JitterMaxDelay is how long a packet may wait behind a gap.
	JitterMaxDelay time.Duration
	// RepeatSequenceHeader emits the video sequence header before every keyframe.
	RepeatSequenceHeader bool
	// SenderSSRC is the sender source identifier of keyframe requests.
	SenderSSRC uint32
	// ProbeOpusChannels derives the OpusHead channel count from the first packet
	// when the track does not announce one.
	ProbeOpusChannels bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		TickInterval:      500 * time.Millisecond,
		KeyframeInterval:  6,
		JitterDepth:       rtp.DefaultJitterDepth,
		JitterMaxDelay:    rtp.DefaultJitterMaxDelay,
		SenderSSRC:        1,
		ProbeOpusChannels: true,
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval %v", ErrInvalidConfig, c.TickInterval)
	}
	if c.KeyframeInterval <= 0 {
		return fmt.Errorf("%w: keyframe interval %d", ErrInvalidConfig, c.KeyframeInterval)
	}
	if err := c.jitter().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) jitter() rtp.JitterConfig {
	return rtp.JitterConfig{
		Depth:    c.JitterDepth,
		MaxDelay: c.JitterMaxDelay,
	}
}

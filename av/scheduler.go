package av

import (
	"fmt"

	"github.com/opd-ai/rtcingest/interfaces"
	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// SchedulerStats counts keyframe requests.
type SchedulerStats struct {
	Ticks      uint64
	Periodic   uint64
	LossDriven uint64
	Rejected   uint64
	SendErrors uint64
}

// KeyframeScheduler sends picture loss indications for a video track: on
// every KeyframeInterval-th tick and on every loss signal. Audio tracks
// never send requests.
type KeyframeScheduler struct {
	mediaKind media.MediaKind
	ssrc      uint32
	sender    uint32
	interval  uint64
	transport interfaces.ControlTransport
	stats     SchedulerStats
}

// NewKeyframeScheduler creates a scheduler for track.
func NewKeyframeScheduler(track *TrackDescriptor, cfg Config, transport interfaces.ControlTransport) *KeyframeScheduler {
	if transport == nil {
		transport = interfaces.SinkConfig{}.WithDefaults().Transport
	}
	interval := cfg.KeyframeInterval
	if interval <= 0 {
		interval = DefaultConfig().KeyframeInterval
	}
	return &KeyframeScheduler{
		mediaKind: track.Media,
		ssrc:      track.SSRC,
		sender:    cfg.SenderSSRC,
		interval:  uint64(interval),
		transport: transport,
	}
}

// OnTick advances the tick counter and sends a periodic request when due.
func (s *KeyframeScheduler) OnTick() {
	s.stats.Ticks++
	if s.mediaKind != media.MediaKindVideo || s.stats.Ticks%s.interval != 0 {
		return
	}
	if s.send(s.ssrc, "periodic") == nil {
		s.stats.Periodic++
	}
}

// OnLoss sends an immediate request for the source that lost packets.
func (s *KeyframeScheduler) OnLoss(ssrc uint32) {
	if s.mediaKind != media.MediaKindVideo {
		return
	}
	if err := s.RequestKeyframe(ssrc); err == nil {
		s.stats.LossDriven++
	}
}

// RequestKeyframe sends one picture loss indication for ssrc. Requests for
// any source other than the track's primary SSRC are rejected.
func (s *KeyframeScheduler) RequestKeyframe(ssrc uint32) error {
	if ssrc != s.ssrc {
		s.stats.Rejected++
		logrus.WithFields(logrus.Fields{
			"function": "KeyframeScheduler.RequestKeyframe",
			"ssrc":     ssrc,
			"expected": s.ssrc,
		}).Error("Keyframe request for unknown ssrc")
		return fmt.Errorf("%w: %d", ErrUnknownSSRC, ssrc)
	}
	return s.send(ssrc, "request")
}

func (s *KeyframeScheduler) send(ssrc uint32, reason string) error {
	pli := &rtcp.PictureLossIndication{
		SenderSSRC: s.sender,
		MediaSSRC:  ssrc,
	}
	if err := s.transport.WriteRTCP([]rtcp.Packet{pli}); err != nil {
		s.stats.SendErrors++
		logrus.WithFields(logrus.Fields{
			"function": "KeyframeScheduler.send",
			"ssrc":     ssrc,
			"reason":   reason,
			"error":    err.Error(),
		}).Error("Failed to send picture loss indication")
		return fmt.Errorf("failed to send pli: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "KeyframeScheduler.send",
		"ssrc":     ssrc,
		"reason":   reason,
		"tick":     s.stats.Ticks,
	}).Debug("Picture loss indication sent")
	return nil
}

// Stats returns the request counters.
func (s *KeyframeScheduler) Stats() SchedulerStats {
	return s.stats
}

package av

import (
	"fmt"
	"time"

	"github.com/opd-ai/rtcingest/av/audio"
	"github.com/opd-ai/rtcingest/av/rtp"
	"github.com/opd-ai/rtcingest/av/video"
	"github.com/opd-ai/rtcingest/container/flv"
	"github.com/opd-ai/rtcingest/interfaces"
	"github.com/opd-ai/rtcingest/media"
	"github.com/opd-ai/rtcingest/reactor"
	"github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// depacketizer is the codec-specific stage between the receive stream and
// the tagger. The variant is fixed when the publisher is built.
type depacketizer interface {
	Depacketize(info *rtp.PacketInfo)
	OnLoss(ssrc uint32, from, count uint64)
	Detach()
	Close()
}

// Publisher owns the ingest pipeline of one published track:
//
//	Demuxer -> ReceiveStream -> depacketizer -> Tagger -> sinks
//
// Loss reported by the receive stream reaches the depacketizer, which asks
// for a reset; resets of a video track become keyframe requests.
//
// A Publisher runs on its reactor loop and is not safe for concurrent use.
type Publisher struct {
	loop  *reactor.Loop
	track *TrackDescriptor
	route media.Route
	cfg   Config
	relay interfaces.RTPRelay

	demuxer   *Demuxer
	receiver  *rtp.ReceiveStream
	depack    depacketizer
	video     *video.H264Depacketizer
	audio     *audio.OpusDepacketizer
	tagger    *Tagger
	scheduler *KeyframeScheduler
	timer     *reactor.Timer

	premature uint64
	closed    bool
}

// NewPublisher admits a track and starts its timer on loop.
//
// Parameters:
//   - loop: reactor the publisher runs on
//   - track: validated track descriptor
//   - route: room and user the track is published to
//   - cfg: publisher configuration
//   - sinks: room, container, control transport and optional relay
//
// Returns:
//   - *Publisher: running publisher
//   - error: ErrInvalidConfig, ErrInvalidClockRate, ErrNoUsableSSRC or ErrUnsupportedCodec
func NewPublisher(loop *reactor.Loop, track *TrackDescriptor, route media.Route, cfg Config, sinks interfaces.SinkConfig) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if track == nil || track.SSRC == 0 {
		return nil, ErrNoUsableSSRC
	}
	if track.ClockRate == 0 {
		return nil, ErrInvalidClockRate
	}
	if loop == nil {
		return nil, fmt.Errorf("%w: nil reactor loop", ErrInvalidConfig)
	}
	sinks = sinks.WithDefaults()

	encoder, err := flv.NewEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create flv encoder: %w", err)
	}

	p := &Publisher{
		loop:      loop,
		track:     track,
		route:     route,
		cfg:       cfg,
		relay:     sinks.Relay,
		demuxer:   NewDemuxer(track),
		tagger:    NewTagger(route, track, encoder, sinks),
		scheduler: NewKeyframeScheduler(track, cfg, sinks.Transport),
	}

	out := publisherEmitter{p}
	switch track.Codec {
	case media.CodecKindH264:
		p.video = video.NewH264Depacketizer(video.H264Options{RepeatSequenceHeader: cfg.RepeatSequenceHeader}, out)
		p.depack = p.video
	case media.CodecKindOpus:
		p.audio = audio.NewOpusDepacketizer(audio.OpusOptions{Channels: track.Channels, ProbeChannels: cfg.ProbeOpusChannels}, out)
		p.depack = p.audio
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, track.Codec)
	}

	p.timer = loop.Every(cfg.TickInterval, p.OnTimer)

	logrus.WithFields(logrus.Fields{
		"function":      "NewPublisher",
		"key":           route.Key(),
		"media":         track.Media.String(),
		"codec":         track.Codec.String(),
		"ssrc":          track.SSRC,
		"tick_interval": cfg.TickInterval.String(),
	}).Info("Publisher created")
	return p, nil
}

// Track returns the descriptor the publisher was built from.
func (p *Publisher) Track() *TrackDescriptor {
	return p.track
}

// Route returns the room and user the track is published to.
func (p *Publisher) Route() media.Route {
	return p.route
}

// HandleRTP demultiplexes one RTP packet. Unknown packets and redundancy
// packets arriving before the first primary packet are dropped.
func (p *Publisher) HandleRTP(pkt *pionrtp.Packet, arrival time.Time) {
	if p.closed {
		return
	}
	if arrival.IsZero() {
		arrival = p.loop.Now()
	}

	switch p.demuxer.Classify(pkt) {
	case ClassPrimary:
		if p.receiver == nil && !p.startReceiver() {
			return
		}
		p.relay.OnRTPPacket(p.route.Room, p.route.User, p.track.Media, pkt)
		p.receiver.AcceptPrimary(p.demuxer.Annotate(pkt, arrival))
	case ClassRedundancy:
		if p.receiver == nil {
			p.premature++
			logrus.WithFields(logrus.Fields{
				"function": "Publisher.HandleRTP",
				"rtx_ssrc": pkt.SSRC,
				"seq":      pkt.SequenceNumber,
			}).Warn("Dropping redundancy packet before the primary stream started")
			return
		}
		p.receiver.AcceptRedundancy(p.demuxer.Annotate(pkt, arrival))
	}
}

func (p *Publisher) startReceiver() bool {
	td := p.track
	rs, err := rtp.NewReceiveStream(rtp.ReceiveConfig{
		SSRC:           td.SSRC,
		PayloadType:    td.PayloadType,
		HasRTX:         td.HasRTX,
		RTXSSRC:        td.RTXSSRC,
		RTXPayloadType: td.RTXPayloadType,
		ClockRate:      td.ClockRate,
		Tags: rtp.Tags{
			Route:  p.route,
			Media:  td.Media,
			Stream: td.Stream,
		},
		Jitter:       p.cfg.jitter(),
		TimeProvider: p.loop.TimeProvider(),
	}, receiveHandler{p})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Publisher.startReceiver",
			"ssrc":     td.SSRC,
			"error":    err.Error(),
		}).Error("Failed to create receive stream")
		return false
	}
	p.receiver = rs
	return true
}

// OnTimer runs the periodic keyframe policy and ages the reorder window.
func (p *Publisher) OnTimer() {
	if p.closed {
		return
	}
	p.scheduler.OnTick()
	if p.receiver != nil {
		p.receiver.OnTimer()
	}
}

// OnSenderReport forwards a sender report of the primary source.
func (p *Publisher) OnSenderReport(sr *rtcp.SenderReport) {
	if p.closed || p.receiver == nil {
		return
	}
	p.receiver.OnSenderReport(sr)
}

// RequestKeyframe sends a picture loss indication for ssrc.
func (p *Publisher) RequestKeyframe(ssrc uint32) error {
	if p.closed {
		return ErrPublisherClosed
	}
	return p.scheduler.RequestKeyframe(ssrc)
}

// Close tears the pipeline down: timer, then depacketizer, then receive
// stream. Callbacks are detached before each stage is released.
func (p *Publisher) Close() {
	if p.closed {
		return
	}
	p.closed = true

	p.timer.Stop()
	p.depack.Detach()
	p.depack.Close()
	if p.receiver != nil {
		p.receiver.Detach()
		p.receiver.Close()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Publisher.Close",
		"key":      p.route.Key(),
		"ssrc":     p.track.SSRC,
	}).Info("Publisher closed")
}

func (p *Publisher) onReset(ssrc uint32) {
	if p.closed {
		return
	}
	p.scheduler.OnLoss(ssrc)
}

// receiveHandler connects the receive stream to the depacketizer.
type receiveHandler struct{ p *Publisher }

func (h receiveHandler) OnPacket(info *rtp.PacketInfo) {
	h.p.depack.Depacketize(info)
}

func (h receiveHandler) OnLoss(ssrc uint32, from, count uint64) {
	h.p.depack.OnLoss(ssrc, from, count)
}

// publisherEmitter connects the depacketizer to the tagger and scheduler.
type publisherEmitter struct{ p *Publisher }

func (e publisherEmitter) EmitPacket(pkt *media.Packet) {
	e.p.tagger.Deliver(pkt)
}

func (e publisherEmitter) RequestReset(ssrc uint32) {
	e.p.onReset(ssrc)
}

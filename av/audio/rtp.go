package audio

import (
	"github.com/opd-ai/rtcingest/av/rtp"
	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/rtp/codecs"
	"github.com/sirupsen/logrus"
)

// OpusOptions selects how the OpusHead channel count is chosen.
type OpusOptions struct {
	// Channels is the configured channel count; 0 means unknown.
	Channels int
	// ProbeChannels inspects the first packet when Channels is 0.
	ProbeChannels bool
}

// Stats are the counters of an OpusDepacketizer.
type Stats struct {
	Packets   uint64
	Headers   uint64
	Malformed uint64
	Lost      uint64
	Samples   uint64
	Channels  int
}

// OpusDepacketizer maps each ordered Opus RTP payload to one access unit.
// The first access unit is preceded by an OpusHead header packet.
//
// Loss needs no recovery for audio, so OnLoss only counts.
type OpusDepacketizer struct {
	opts    OpusOptions
	emitter media.Emitter
	packet  codecs.OpusPacket
	clock   rtp.TimestampUnwrapper
	probe   *ChannelProbe

	headerSent bool
	stats      Stats
}

// NewOpusDepacketizer creates a depacketizer that hands its output to emitter.
//
// Parameters:
//   - opts: channel selection for the OpusHead header
//   - emitter: receiver of header and audio packets
//
// Returns:
//   - *OpusDepacketizer: the depacketizer, ready for Depacketize
func NewOpusDepacketizer(opts OpusOptions, emitter media.Emitter) *OpusDepacketizer {
	if emitter == nil {
		emitter = media.NopEmitter()
	}
	d := &OpusDepacketizer{
		opts:    opts,
		emitter: emitter,
	}
	if opts.Channels == 0 && opts.ProbeChannels {
		d.probe = NewChannelProbe()
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewOpusDepacketizer",
		"channels": opts.Channels,
		"probe":    opts.ProbeChannels,
	}).Info("Creating Opus depacketizer")
	return d
}

// Depacketize consumes the next ordered packet.
func (d *OpusDepacketizer) Depacketize(info *rtp.PacketInfo) {
	pkt := info.Packet
	if len(pkt.Payload) == 0 {
		return
	}

	payload, err := d.packet.Unmarshal(pkt.Payload)
	if err != nil {
		d.stats.Malformed++
		logrus.WithFields(logrus.Fields{
			"function": "OpusDepacketizer.Depacketize",
			"seq":      pkt.SequenceNumber,
			"error":    err.Error(),
		}).Warn("Malformed Opus payload")
		return
	}
	dts := d.clock.Unwrap(pkt.Timestamp)

	if !d.headerSent {
		d.emitHeader(info, payload, dts)
	}

	if samples, ok := FrameSamples(payload); ok {
		d.stats.Samples += samples
	}
	d.stats.Packets++
	d.emitter.EmitPacket(&media.Packet{
		DTS:     dts,
		PTS:     dts,
		Media:   media.MediaKindAudio,
		Codec:   media.CodecKindOpus,
		Payload: payload,
		SSRC:    info.SSRC(),
		ExtSeq:  info.ExtSeq,
	})
}

func (d *OpusDepacketizer) emitHeader(info *rtp.PacketInfo, first []byte, dts int64) {
	channels := d.opts.Channels
	if channels == 0 {
		channels = DefaultOpusChannels
		if d.probe != nil {
			channels = d.probe.Channels(first)
		}
	}

	head, err := OpusHead(channels)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "OpusDepacketizer.emitHeader",
			"channels": channels,
			"error":    err.Error(),
		}).Warn("Falling back to default channel count")
		channels = DefaultOpusChannels
		head, _ = OpusHead(channels)
	}

	d.headerSent = true
	d.stats.Headers++
	d.stats.Channels = channels
	logrus.WithFields(logrus.Fields{
		"function": "OpusDepacketizer.emitHeader",
		"ssrc":     info.SSRC(),
		"channels": channels,
	}).Info("Emitting OpusHead")

	d.emitter.EmitPacket(&media.Packet{
		DTS:     dts,
		PTS:     dts,
		Media:   media.MediaKindAudio,
		Codec:   media.CodecKindOpus,
		Header:  true,
		Payload: head,
		SSRC:    info.SSRC(),
		ExtSeq:  info.ExtSeq,
	})
}

// OnLoss records packets the receive context had to skip.
func (d *OpusDepacketizer) OnLoss(ssrc uint32, from, count uint64) {
	d.stats.Lost += count
	logrus.WithFields(logrus.Fields{
		"function": "OpusDepacketizer.OnLoss",
		"ssrc":     ssrc,
		"from":     from,
		"count":    count,
	}).Debug("Audio loss tolerated")
}

// Stats returns a snapshot of the counters.
func (d *OpusDepacketizer) Stats() Stats {
	return d.stats
}

// Detach disconnects the emitter; later output is discarded.
func (d *OpusDepacketizer) Detach() {
	d.emitter = media.NopEmitter()
}

// Close detaches the emitter.
func (d *OpusDepacketizer) Close() {
	d.Detach()
}

package video

import (
	"fmt"

	"github.com/opd-ai/rtcingest/av/rtp"
	"github.com/opd-ai/rtcingest/limits"
	"github.com/opd-ai/rtcingest/media"
	"github.com/ossrs/go-oryx-lib/avc"
	"github.com/pion/rtp/codecs"
	"github.com/sirupsen/logrus"
)

// H264Options tunes sequence-header emission.
type H264Options struct {
	// RepeatSequenceHeader emits the sequence header before every keyframe
	// instead of once per parameter-set change.
	RepeatSequenceHeader bool
}

// Stats are the counters of an H264Depacketizer.
type Stats struct {
	AccessUnits    uint64
	KeyFrames      uint64
	Headers        uint64
	ParameterSets  uint64
	Discarded      uint64
	Malformed      uint64
	Resets         uint64
	WaitingForKey  bool
	Resolution     Resolution
	HeaderVersions uint64
}

// frameAssembly collects the NALUs of one access unit.
type frameAssembly struct {
	timestamp uint32
	dts       int64
	ssrc      uint32
	extSeq    uint64
	sample    *avc.AVCSample
	size      int
	keyframe  bool
}

func newFrameAssembly(info *rtp.PacketInfo, dts int64) *frameAssembly {
	return &frameAssembly{
		timestamp: info.Timestamp(),
		dts:       dts,
		ssrc:      info.SSRC(),
		sample:    avc.NewAVCSample(3),
	}
}

func (fa *frameAssembly) add(nalu *avc.NALU, extSeq uint64) {
	fa.sample.NALUs = append(fa.sample.NALUs, nalu)
	fa.size += 4 + nalu.Size()
	fa.extSeq = extSeq
	if nalu.NALUType == avc.NALUTypeIDR {
		fa.keyframe = true
	}
}

// H264Depacketizer assembles ordered H.264 RTP payloads (single NALU,
// STAP-A, FU-A) into access units with 4-byte NALU lengths.
//
// SPS and PPS units update the ParameterSetCache and never appear in an
// access unit. A keyframe is preceded by a sequence header built from the
// cache. After any loss the partial access unit is discarded and output
// resumes with the next keyframe.
//
// Not safe for concurrent use.
type H264Depacketizer struct {
	opts    H264Options
	emitter media.Emitter
	packet  *codecs.H264Packet
	params  ParameterSetCache
	clock   rtp.TimestampUnwrapper

	au      *frameAssembly
	lastExt uint64
	hasLast bool

	waitKeyframe  bool
	headerSent    bool
	headerVersion uint64
	stats         Stats
}

// NewH264Depacketizer creates a depacketizer that hands its output to emitter.
// Output starts with the first keyframe.
func NewH264Depacketizer(opts H264Options, emitter media.Emitter) *H264Depacketizer {
	if emitter == nil {
		emitter = media.NopEmitter()
	}
	logrus.WithFields(logrus.Fields{
		"function":      "NewH264Depacketizer",
		"repeat_header": opts.RepeatSequenceHeader,
	}).Info("Creating H264 depacketizer")

	return &H264Depacketizer{
		opts:         opts,
		emitter:      emitter,
		packet:       &codecs.H264Packet{IsAVC: true},
		waitKeyframe: true,
	}
}

// Depacketize consumes the next ordered packet.
func (d *H264Depacketizer) Depacketize(info *rtp.PacketInfo) {
	pkt := info.Packet
	if d.hasLast && info.ExtSeq != d.lastExt+1 {
		d.interrupt(info.SSRC(), fmt.Sprintf("sequence gap after %d", d.lastExt))
	}
	d.lastExt = info.ExtSeq
	d.hasLast = true

	if len(pkt.Payload) == 0 {
		return
	}
	dts := d.clock.Unwrap(pkt.Timestamp)
	if d.au != nil && d.au.timestamp != pkt.Timestamp {
		d.flush()
	}

	payload, err := d.packet.Unmarshal(pkt.Payload)
	if err != nil {
		d.stats.Malformed++
		logrus.WithFields(logrus.Fields{
			"function": "H264Depacketizer.Depacketize",
			"seq":      pkt.SequenceNumber,
			"error":    err.Error(),
		}).Warn("Malformed H264 payload")
		d.interrupt(info.SSRC(), "malformed payload")
		return
	}

	if len(payload) > 0 {
		sample := avc.NewAVCSample(3)
		if err := sample.UnmarshalBinary(payload); err != nil {
			d.stats.Malformed++
			d.interrupt(info.SSRC(), fmt.Sprintf("bad nalu framing: %v", err))
			return
		}
		for _, nalu := range sample.NALUs {
			if !d.handleNALU(info, dts, nalu) {
				return
			}
		}
	}

	if pkt.Marker {
		d.flush()
	}
}

// handleNALU routes one NALU. It returns false when the access unit had to be abandoned.
func (d *H264Depacketizer) handleNALU(info *rtp.PacketInfo, dts int64, nalu *avc.NALU) bool {
	switch nalu.NALUType {
	case avc.NALUTypeSPS, avc.NALUTypePPS:
		d.updateParameterSet(nalu)
		return true
	case avc.NALUTypeSPSExt, avc.NALUTypeSubsetSPS:
		d.stats.Malformed++
		logrus.WithFields(logrus.Fields{
			"function":  "H264Depacketizer.handleNALU",
			"nalu_type": nalu.NALUType.String(),
			"seq":       info.Packet.SequenceNumber,
		}).Error("Unsupported parameter set subtype, dropping unit")
		return true
	case avc.NALUTypeAccessUnitDelimiter:
		return true
	}

	if d.au == nil {
		d.au = newFrameAssembly(info, dts)
	}
	d.au.add(nalu, info.ExtSeq)

	if err := limits.ValidateAccessUnit(d.au.size); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "H264Depacketizer.handleNALU",
			"error":    err.Error(),
		}).Warn("Access unit too large")
		d.interrupt(info.SSRC(), "oversized access unit")
		return false
	}
	return true
}

func (d *H264Depacketizer) updateParameterSet(nalu *avc.NALU) {
	changed, err := d.params.Update(nalu)
	if err != nil {
		d.stats.Malformed++
		logrus.WithFields(logrus.Fields{
			"function":  "H264Depacketizer.updateParameterSet",
			"nalu_type": nalu.NALUType.String(),
			"error":     err.Error(),
		}).Error("Dropping malformed parameter set")
		return
	}
	d.stats.ParameterSets++
	if !changed {
		return
	}

	fields := logrus.Fields{
		"function":  "H264Depacketizer.updateParameterSet",
		"nalu_type": nalu.NALUType.String(),
		"version":   d.params.Version(),
	}
	if nalu.NALUType == avc.NALUTypeSPS {
		if res, ok := d.params.Resolution(); ok {
			d.stats.Resolution = res
			fields["resolution"] = res.String()
		}
	}
	logrus.WithFields(fields).Info("Parameter set changed")
}

// flush emits the pending access unit, preceded by a sequence header when it
// is a keyframe that needs one.
func (d *H264Depacketizer) flush() {
	au := d.au
	d.au = nil
	if au == nil || len(au.sample.NALUs) == 0 {
		return
	}

	if !au.keyframe && d.waitKeyframe {
		d.stats.Discarded++
		logrus.WithFields(logrus.Fields{
			"function":  "H264Depacketizer.flush",
			"timestamp": au.timestamp,
		}).Debug("Dropping access unit while waiting for keyframe")
		return
	}

	if au.keyframe {
		if !d.emitHeader(au) {
			return
		}
		d.waitKeyframe = false
		d.stats.KeyFrames++
	}

	payload, err := au.sample.MarshalBinary()
	if err != nil {
		d.stats.Discarded++
		logrus.WithFields(logrus.Fields{
			"function": "H264Depacketizer.flush",
			"error":    err.Error(),
		}).Error("Failed to marshal access unit")
		return
	}

	d.stats.AccessUnits++
	d.emitter.EmitPacket(&media.Packet{
		DTS:      au.dts,
		PTS:      au.dts,
		Media:    media.MediaKindVideo,
		Codec:    media.CodecKindH264,
		KeyFrame: au.keyframe,
		Payload:  payload,
		SSRC:     au.ssrc,
		ExtSeq:   au.extSeq,
	})
}

func (d *H264Depacketizer) emitHeader(au *frameAssembly) bool {
	if !d.params.Ready() {
		d.stats.Discarded++
		d.waitKeyframe = true
		logrus.WithFields(logrus.Fields{
			"function":  "H264Depacketizer.emitHeader",
			"timestamp": au.timestamp,
			"has_sps":   len(d.params.SPS()) > 0,
			"has_pps":   len(d.params.PPS()) > 0,
		}).Warn("Keyframe without parameter sets")
		d.emitter.RequestReset(au.ssrc)
		return false
	}

	if d.headerSent && !d.opts.RepeatSequenceHeader && d.headerVersion == d.params.Version() {
		return true
	}

	header, err := d.params.SequenceHeader()
	if err != nil {
		d.stats.Discarded++
		logrus.WithFields(logrus.Fields{
			"function": "H264Depacketizer.emitHeader",
			"error":    err.Error(),
		}).Error("Failed to build sequence header")
		return false
	}

	if d.headerVersion != d.params.Version() {
		d.stats.HeaderVersions++
	}
	d.headerSent = true
	d.headerVersion = d.params.Version()
	d.stats.Headers++
	d.emitter.EmitPacket(&media.Packet{
		DTS:     au.dts,
		PTS:     au.dts,
		Media:   media.MediaKindVideo,
		Codec:   media.CodecKindH264,
		Header:  true,
		Payload: header,
		SSRC:    au.ssrc,
		ExtSeq:  au.extSeq,
	})
	return true
}

// OnLoss is told about packets the receive context had to skip.
func (d *H264Depacketizer) OnLoss(ssrc uint32, from, count uint64) {
	d.interrupt(ssrc, fmt.Sprintf("lost %d packets from %d", count, from))
	if count > 0 {
		d.lastExt = from + count - 1
		d.hasLast = true
	}
}

// interrupt abandons the partial access unit and asks for a keyframe.
func (d *H264Depacketizer) interrupt(ssrc uint32, reason string) {
	if d.au != nil {
		d.stats.Discarded++
		d.au = nil
	}
	d.packet = &codecs.H264Packet{IsAVC: true}
	d.waitKeyframe = true
	d.stats.Resets++

	logrus.WithFields(logrus.Fields{
		"function": "H264Depacketizer.interrupt",
		"ssrc":     ssrc,
		"reason":   reason,
	}).Warn("Video depacketizer reset, waiting for keyframe")
	d.emitter.RequestReset(ssrc)
}

// ParameterSets exposes the parameter-set cache for inspection.
func (d *H264Depacketizer) ParameterSets() *ParameterSetCache {
	return &d.params
}

// Stats returns a snapshot of the counters.
func (d *H264Depacketizer) Stats() Stats {
	s := d.stats
	s.WaitingForKey = d.waitKeyframe
	return s
}

// Detach disconnects the emitter; later output is discarded.
func (d *H264Depacketizer) Detach() {
	d.emitter = media.NopEmitter()
}

// Close detaches the emitter and drops the partial access unit.
func (d *H264Depacketizer) Close() {
	d.Detach()
	d.au = nil
}

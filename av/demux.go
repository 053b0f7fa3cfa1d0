package av

import (
	"time"

	"github.com/opd-ai/rtcingest/av/rtp"
	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// PacketClass is the demultiplexing decision for one RTP packet.
type PacketClass int

const (
	// ClassUnknown packets match neither source of the track.
	ClassUnknown PacketClass = iota
	// ClassPrimary packets carry the primary SSRC and payload type.
	ClassPrimary
	// ClassRedundancy packets carry the retransmission SSRC and payload type.
	ClassRedundancy
)

func (c PacketClass) String() string {
	switch c {
	case ClassPrimary:
		return "primary"
	case ClassRedundancy:
		return "redundancy"
	default:
		return "unknown"
	}
}

// DemuxStats counts demultiplexing decisions.
type DemuxStats struct {
	Primary    uint64
	Redundancy uint64
	Unknown    uint64
}

// Demuxer classifies packets against a TrackDescriptor.
type Demuxer struct {
	track *TrackDescriptor
	stats DemuxStats
}

// NewDemuxer creates a demultiplexer for track.
func NewDemuxer(track *TrackDescriptor) *Demuxer {
	return &Demuxer{track: track}
}

// Classify decides where pkt goes and counts the decision.
func (d *Demuxer) Classify(pkt *pionrtp.Packet) PacketClass {
	td := d.track
	switch {
	case pkt.SSRC == td.SSRC && pkt.PayloadType == td.PayloadType:
		d.stats.Primary++
		return ClassPrimary
	case td.HasRTX && pkt.SSRC == td.RTXSSRC && pkt.PayloadType == td.RTXPayloadType:
		d.stats.Redundancy++
		return ClassRedundancy
	}

	d.stats.Unknown++
	logrus.WithFields(logrus.Fields{
		"function":     "Demuxer.Classify",
		"ssrc":         pkt.SSRC,
		"payload_type": pkt.PayloadType,
		"seq":          pkt.SequenceNumber,
		"track_ssrc":   td.SSRC,
		"track_pt":     td.PayloadType,
	}).Error("Dropping unidentified packet")
	return ClassUnknown
}

// Annotate attaches the track's extension ids and the arrival time to pkt.
func (d *Demuxer) Annotate(pkt *pionrtp.Packet, arrival time.Time) rtp.Inbound {
	return rtp.Inbound{
		Packet:  pkt,
		Ext:     d.track.Extensions,
		Arrival: arrival,
	}
}

// Stats returns the decision counters.
func (d *Demuxer) Stats() DemuxStats {
	return d.stats
}

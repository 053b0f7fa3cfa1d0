package av

import (
	"github.com/opd-ai/rtcingest/container/flv"
	"github.com/opd-ai/rtcingest/interfaces"
	"github.com/opd-ai/rtcingest/media"
	"github.com/sirupsen/logrus"
)

// Rescale converts a value in clock units to milliseconds with integer
// truncation. clockRate must be positive.
func Rescale(value int64, clockRate uint32) int64 {
	return value * 1000 / int64(clockRate)
}

// TaggerStats counts tagger output.
type TaggerStats struct {
	Packets       uint64
	Headers       uint64
	EncodeErrors  uint64
	LastDTSMillis int64
}

// Tagger rescales depacketizer output to milliseconds, stamps routing keys,
// attaches the FLV tag body and hands the packet to the sinks.
type Tagger struct {
	route     media.Route
	mediaKind media.MediaKind
	stream    media.StreamKind
	clockRate uint32
	encoder   *flv.Encoder
	room      interfaces.RoomSink
	container interfaces.ContainerSink
	stats     TaggerStats
}

// NewTagger creates a tagger for one track.
func NewTagger(route media.Route, track *TrackDescriptor, encoder *flv.Encoder, sinks interfaces.SinkConfig) *Tagger {
	sinks = sinks.WithDefaults()
	return &Tagger{
		route:     route,
		mediaKind: track.Media,
		stream:    track.Stream,
		clockRate: track.ClockRate,
		encoder:   encoder,
		room:      sinks.Room,
		container: sinks.Container,
	}
}

// Tag rewrites pkt in place: millisecond timestamps, routing keys, FLV
// format and tag body. It reports whether a tag body was produced.
func (t *Tagger) Tag(pkt *media.Packet) bool {
	pkt.DTS = Rescale(pkt.DTS, t.clockRate)
	pkt.PTS = Rescale(pkt.PTS, t.clockRate)
	pkt.App = t.route.Room
	pkt.Stream = t.route.User
	pkt.Key = t.route.Key()
	pkt.Format = media.FormatFLV

	if t.encoder == nil {
		return false
	}
	tag, err := t.encoder.Encode(pkt)
	if err != nil {
		t.stats.EncodeErrors++
		logrus.WithFields(logrus.Fields{
			"function": "Tagger.Tag",
			"key":      pkt.Key,
			"codec":    pkt.Codec.String(),
			"error":    err.Error(),
		}).Error("Failed to build container tag")
		return false
	}
	pkt.Tag = tag
	return true
}

// Deliver tags pkt and passes it to the room, then to the container.
// The container only receives packets with a tag body.
func (t *Tagger) Deliver(pkt *media.Packet) {
	tagged := t.Tag(pkt)

	t.stats.Packets++
	if pkt.Header {
		t.stats.Headers++
	}
	t.stats.LastDTSMillis = pkt.DTS

	t.room.OnPublisherPacket(t.route.Room, t.route.User, t.mediaKind, t.stream, pkt)
	if tagged {
		t.container.OnContainerPacket(t.route.Room, t.route.User, t.stream, pkt)
	}
}

// Stats returns the output counters.
func (t *Tagger) Stats() TaggerStats {
	return t.stats
}

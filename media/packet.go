package media

import "fmt"

// Route is the routing key of a published track: the room it belongs to and
// the publishing user.
type Route struct {
	Room string
	User string
}

// Key returns the composite "room/user" key used by the container output.
func (r Route) Key() string {
	return r.Room + "/" + r.User
}

func (r Route) String() string {
	return r.Key()
}

// Packet is one reconstructed access unit (or a synthesized header unit).
//
// Depacketizers create it with timestamps in track clock units. The output
// tagger rescales DTS/PTS to milliseconds, fills the routing fields and
// the container tag, after which the packet belongs to the sinks.
type Packet struct {
	DTS int64
	PTS int64

	Media MediaKind
	Codec CodecKind
	// Format is FormatRaw until the packet has been tagged for a container.
	Format FormatKind

	KeyFrame bool
	// Header marks a synthesized sequence header (AVC decoder configuration
	// record, OpusHead) rather than media data.
	Header bool

	// Payload is the elementary stream data: 4-byte length-prefixed NALUs for
	// H.264, one raw Opus packet for audio, or the header record.
	Payload []byte
	// Tag is the container tag body built by header injection.
	Tag []byte

	// Routing metadata stamped by the tagger.
	App    string
	Stream string
	Key    string

	// SSRC of the primary source that produced the packet.
	SSRC uint32
	// ExtSeq is the extended sequence number of the last protocol packet of
	// the access unit.
	ExtSeq uint64
}

// CopyProperties copies timing, kind and routing fields from src, leaving the
// payload, tag and header/keyframe flags untouched.
func (p *Packet) CopyProperties(src *Packet) {
	p.DTS = src.DTS
	p.PTS = src.PTS
	p.Media = src.Media
	p.Codec = src.Codec
	p.Format = src.Format
	p.App = src.App
	p.Stream = src.Stream
	p.Key = src.Key
	p.SSRC = src.SSRC
	p.ExtSeq = src.ExtSeq
}

func (p *Packet) String() string {
	return fmt.Sprintf("%v/%v dts=%d pts=%d key=%v header=%v size=%d",
		p.Media, p.Codec, p.DTS, p.PTS, p.KeyFrame, p.Header, len(p.Payload))
}

package interfaces

import (
	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// RoomSink defines the room/conference fan-out that receives every tagged
// packet of a published track.
type RoomSink interface {
	// OnPublisherPacket delivers one tagged media packet.
	OnPublisherPacket(room, user string, mediaKind media.MediaKind, streamKind media.StreamKind, pkt *media.Packet)
}

// ContainerSink defines the container multiplexer that turns tagged packets
// into bytes. Packets arrive after header injection, with Tag set.
type ContainerSink interface {
	// OnContainerPacket delivers one tagged media packet with its container tag body.
	OnContainerPacket(room, user string, streamKind media.StreamKind, pkt *media.Packet)
}

// ControlTransport sends control packets back to the media sender.
// *webrtc.PeerConnection satisfies it.
type ControlTransport interface {
	// WriteRTCP serializes and sends pkts without waiting for any acknowledgment.
	WriteRTCP(pkts []rtcp.Packet) error
}

// RTPRelay optionally receives every accepted primary RTP packet as it
// arrives, before reordering, for rooms that forward RTP untouched.
type RTPRelay interface {
	OnRTPPacket(room, user string, mediaKind media.MediaKind, pkt *rtp.Packet)
}

// SinkConfig bundles the collaborators of a publisher. Nil members are
// replaced by no-op implementations.
type SinkConfig struct {
	Room      RoomSink
	Container ContainerSink
	Transport ControlTransport
	Relay     RTPRelay
}

// WithDefaults returns a copy of c with every nil collaborator replaced by a
// no-op implementation.
func (c SinkConfig) WithDefaults() SinkConfig {
	if c.Room == nil {
		c.Room = nopSink{}
	}
	if c.Container == nil {
		c.Container = nopSink{}
	}
	if c.Transport == nil {
		c.Transport = nopSink{}
	}
	if c.Relay == nil {
		c.Relay = nopSink{}
	}
	return c
}

type nopSink struct{}

func (nopSink) OnPublisherPacket(string, string, media.MediaKind, media.StreamKind, *media.Packet) {}
func (nopSink) OnContainerPacket(string, string, media.StreamKind, *media.Packet)                  {}
func (nopSink) WriteRTCP([]rtcp.Packet) error                                                      { return nil }
func (nopSink) OnRTPPacket(string, string, media.MediaKind, *rtp.Packet)                           {}

package rtp

import (
	"time"

	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/rtp"
)

// ExtensionIDs holds the header-extension ids negotiated for a track.
// A zero id means the extension was not negotiated.
type ExtensionIDs struct {
	MID         uint8
	RID         uint8
	AbsSendTime uint8
}

// Inbound is a protocol packet annotated by the demultiplexer with the
// track's extension ids and its arrival time.
type Inbound struct {
	Packet  *rtp.Packet
	Ext     ExtensionIDs
	Arrival time.Time
}

// MID returns the value of the media-id extension, if present.
func (in Inbound) MID() (string, bool) {
	return readStringExtension(in.Packet, in.Ext.MID)
}

// RID returns the value of the rtp-stream-id extension, if present.
func (in Inbound) RID() (string, bool) {
	return readStringExtension(in.Packet, in.Ext.RID)
}

// AbsSendTime returns the 24-bit abs-send-time value, if present.
func (in Inbound) AbsSendTime() (uint64, bool) {
	if in.Ext.AbsSendTime == 0 || in.Packet == nil {
		return 0, false
	}
	b := in.Packet.GetExtension(in.Ext.AbsSendTime)
	if b == nil {
		return 0, false
	}
	var ext rtp.AbsSendTimeExtension
	if err := ext.Unmarshal(b); err != nil {
		return 0, false
	}
	return ext.Timestamp, true
}

func readStringExtension(pkt *rtp.Packet, id uint8) (string, bool) {
	if id == 0 || pkt == nil {
		return "", false
	}
	b := pkt.GetExtension(id)
	if len(b) == 0 {
		return "", false
	}
	return string(b), true
}

// Tags are the routing identifiers copied from the track onto every packet.
type Tags struct {
	Route  media.Route
	Media  media.MediaKind
	Stream media.StreamKind
}

// PacketInfo is the jitter-buffer unit: one protocol packet with its
// extended sequence number and routing tags.
type PacketInfo struct {
	Packet *rtp.Packet
	ExtSeq uint64
	Tags

	MID string
	// RID is the rtp-stream-id of a simulcast layer.
	RID            string
	AbsSendTime    uint64
	HasAbsSendTime bool
	Arrival        time.Time
}

// NewPacketInfo wraps an annotated packet, decoding its extension values.
func NewPacketInfo(in Inbound, extSeq uint64, tags Tags) *PacketInfo {
	info := &PacketInfo{
		Packet:  in.Packet,
		ExtSeq:  extSeq,
		Tags:    tags,
		Arrival: in.Arrival,
	}
	if mid, ok := in.MID(); ok {
		info.MID = mid
	}
	if rid, ok := in.RID(); ok {
		info.RID = rid
	}
	info.AbsSendTime, info.HasAbsSendTime = in.AbsSendTime()
	return info
}

// SSRC returns the source identifier of the wrapped packet.
func (p *PacketInfo) SSRC() uint32 {
	return p.Packet.SSRC
}

// Timestamp returns the RTP timestamp of the wrapped packet.
func (p *PacketInfo) Timestamp() uint32 {
	return p.Packet.Timestamp
}

// Marker reports the RTP marker bit.
func (p *PacketInfo) Marker() bool {
	return p.Packet.Marker
}

package transport

import (
	"errors"
	"fmt"

	"github.com/opd-ai/rtcingest/limits"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// PacketType identifies the protocol of a datagram on a socket shared by
// RTP and RTCP.
type PacketType byte

const (
	PacketTypeUnknown PacketType = iota
	PacketTypeRTP
	PacketTypeRTCP
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeRTP:
		return "rtp"
	case PacketTypeRTCP:
		return "rtcp"
	default:
		return "unknown"
	}
}

var (
	// ErrNotMedia indicates a datagram that is neither RTP nor RTCP.
	ErrNotMedia = errors.New("datagram is neither rtp nor rtcp")

	// ErrNoPeer indicates a control send before any packet was received.
	ErrNoPeer = errors.New("no remote peer known")

	// ErrWriterNotBound indicates a control send before the peer connection
	// bound its RTCP writer.
	ErrWriterNotBound = errors.New("rtcp writer not bound")
)

// Classify tells RTP from RTCP following RFC 5761. Both carry version 2;
// RTCP packet types occupy 192-223 in the second byte, so RTP payload types
// 64-95 must not be negotiated on a shared socket.
func Classify(buf []byte) PacketType {
	if len(buf) < limits.MinRTCPPacket || buf[0]>>6 != 2 {
		return PacketTypeUnknown
	}
	if IsRTCP(buf) {
		return PacketTypeRTCP
	}
	if len(buf) < limits.MinRTPPacket {
		return PacketTypeUnknown
	}
	return PacketTypeRTP
}

// IsRTCP reports whether the second byte of buf is in the RTCP packet type range.
func IsRTCP(buf []byte) bool {
	return len(buf) >= 2 && buf[1] >= 192 && buf[1] <= 223
}

// ParseRTP unmarshals an RTP datagram into a packet that does not alias buf.
func ParseRTP(buf []byte) (*rtp.Packet, error) {
	if err := limits.ValidateRTPPacket(buf); err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(append([]byte(nil), buf...)); err != nil {
		return nil, fmt.Errorf("failed to parse rtp: %w", err)
	}
	return pkt, nil
}

// ParseRTCP unmarshals a compound RTCP datagram.
func ParseRTCP(buf []byte) ([]rtcp.Packet, error) {
	if err := limits.ValidateRTCPPacket(buf); err != nil {
		return nil, err
	}
	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rtcp: %w", err)
	}
	return pkts, nil
}

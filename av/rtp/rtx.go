package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/rtcingest/limits"
	"github.com/pion/rtp"
)

// ErrRTXTooShort indicates an RTX payload without room for the original sequence number.
var ErrRTXTooShort = errors.New("rtx payload too short")

// DecodeRTX restores the original packet carried in an RTX packet (RFC 4588).
//
// The first two payload bytes hold the original sequence number. The
// restored packet takes the primary SSRC and payload type and keeps every
// other header field of the retransmission, including extensions.
//
// Returns the restored packet and its original sequence number.
func DecodeRTX(pkt *rtp.Packet, primarySSRC uint32, primaryPT uint8) (*rtp.Packet, uint16, error) {
	if len(pkt.Payload) < limits.RTXHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrRTXTooShort, len(pkt.Payload))
	}

	osn := binary.BigEndian.Uint16(pkt.Payload[:limits.RTXHeaderSize])
	restored := &rtp.Packet{
		Header:  pkt.Header.Clone(),
		Payload: pkt.Payload[limits.RTXHeaderSize:],
	}
	restored.SequenceNumber = osn
	restored.SSRC = primarySSRC
	restored.PayloadType = primaryPT
	restored.Padding = false
	return restored, osn, nil
}

// EncodeRTX builds the RTX form of pkt. It is the inverse of DecodeRTX and is
// used to exercise recovery paths.
func EncodeRTX(pkt *rtp.Packet, rtxSSRC uint32, rtxPT uint8, rtxSeq uint16) *rtp.Packet {
	payload := make([]byte, limits.RTXHeaderSize+len(pkt.Payload))
	binary.BigEndian.PutUint16(payload, pkt.SequenceNumber)
	copy(payload[limits.RTXHeaderSize:], pkt.Payload)

	out := &rtp.Packet{Header: pkt.Header.Clone(), Payload: payload}
	out.SSRC = rtxSSRC
	out.PayloadType = rtxPT
	out.SequenceNumber = rtxSeq
	out.Padding = false
	return out
}

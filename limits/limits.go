package limits

import (
	"errors"
	"fmt"
)

const (
	// MinRTPPacket is the size of a fixed RTP header without CSRCs.
	MinRTPPacket = 12

	// MinRTCPPacket is the size of the RTCP common header.
	MinRTCPPacket = 4

	// MaxRTPPacket is the largest datagram payload accepted as one RTP or RTCP packet.
	MaxRTPPacket = 1500

	// MaxAccessUnit bounds a reassembled access unit (4MB).
	MaxAccessUnit = 4 * 1024 * 1024

	// RTXHeaderSize is the original-sequence-number prefix of an RTX payload (RFC 4588).
	RTXHeaderSize = 2
)

var (
	// ErrPacketEmpty indicates an empty packet was provided
	ErrPacketEmpty = errors.New("empty packet")

	// ErrPacketTooSmall indicates the packet is shorter than its fixed header
	ErrPacketTooSmall = errors.New("packet too small")

	// ErrPacketTooLarge indicates the packet exceeds the maximum size
	ErrPacketTooLarge = errors.New("packet too large")
)

// ValidateSize validates data against a minimum and maximum size.
// Returns an error with context including the actual and limit sizes.
func ValidateSize(data []byte, minSize, maxSize int) error {
	if len(data) == 0 {
		return ErrPacketEmpty
	}
	if len(data) < minSize {
		return fmt.Errorf("%w: size %d below minimum %d", ErrPacketTooSmall, len(data), minSize)
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPacketTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateRTPPacket validates a raw RTP packet against MinRTPPacket and MaxRTPPacket.
func ValidateRTPPacket(data []byte) error {
	return ValidateSize(data, MinRTPPacket, MaxRTPPacket)
}

// ValidateRTCPPacket validates a raw RTCP compound packet against MinRTCPPacket and MaxRTPPacket.
func ValidateRTCPPacket(data []byte) error {
	return ValidateSize(data, MinRTCPPacket, MaxRTPPacket)
}

// ValidateAccessUnit checks that an access unit under assembly stays within MaxAccessUnit.
// An empty unit is valid here; emptiness is decided by the depacketizer.
func ValidateAccessUnit(size int) error {
	if size > MaxAccessUnit {
		return fmt.Errorf("%w: access unit size %d exceeds limit %d", ErrPacketTooLarge, size, MaxAccessUnit)
	}
	return nil
}

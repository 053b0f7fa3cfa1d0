// Package limits provides centralized size constants and validation functions
// for the packets that enter the ingest pipeline.
//
// # Size Hierarchy
//
//   - MinRTPPacket (12 bytes): a fixed RTP header with no CSRCs or payload.
//   - MinRTCPPacket (4 bytes): one RTCP common header.
//   - MaxRTPPacket (1500 bytes): one Ethernet MTU. WebRTC senders packetize
//     well below this; anything larger is not a single datagram payload.
//   - MaxAccessUnit (4MB): the absolute ceiling for one reassembled access unit.
//     It bounds the memory a fragmented frame can claim before its last
//     fragment arrives.
//
// # Validation Functions
//
//	if err := limits.ValidateRTPPacket(buf); err != nil {
//	    // errors.Is(err, limits.ErrPacketEmpty) or limits.ErrPacketTooLarge / ErrPacketTooSmall
//	}
package limits

// Package rtp provides the receive side of one published RTP source: extended
// sequence numbers, RTX recovery, the jitter buffer and the receive context
// that ties them together.
//
// It uses the pion/rtp library for packet handling and pion/rtcp for sender
// reports.
//
// # Architecture Overview
//
//   - SequenceUnwrapper: turns 16-bit wrapping sequence numbers into extended ones
//   - DecodeRTX / EncodeRTX: RFC 4588 retransmission payload format
//   - PacketInfo: one packet with its extended sequence number and routing tags
//   - JitterBuffer: ordering window keyed by extended sequence number
//   - ReceiveStream: receive context of one primary SSRC
//
// # Receive Context
//
//	rs, err := rtp.NewReceiveStream(rtp.ReceiveConfig{
//	    SSRC: ssrc, PayloadType: 102,
//	    HasRTX: true, RTXSSRC: rtxSSRC, RTXPayloadType: 103,
//	    ClockRate: 90000,
//	    Jitter:    rtp.DefaultJitterConfig(),
//	}, handler)
//	rs.AcceptPrimary(rtp.Inbound{Packet: pkt, Ext: ids})
//	rs.AcceptRedundancy(rtp.Inbound{Packet: rtxPkt, Ext: ids})
//	rs.OnTimer()
//
// The handler receives packets strictly in increasing extended-sequence
// order. Packets restored from RTX are indistinguishable from the primary
// ones. When a gap cannot be filled within the window bounds it is skipped
// and reported through Handler.OnLoss; the stream continues.
//
// # Window Bounds
//
// JitterConfig.Depth caps the span between the next expected sequence number
// and the newest buffered one; JitterConfig.MaxDelay caps how long a packet
// waits behind a gap. OnTimer applies MaxDelay when no packets arrive.
//
// # Thread Safety
//
// Nothing in this package locks. A ReceiveStream belongs to one publisher and
// runs on that publisher's reactor loop.
package rtp

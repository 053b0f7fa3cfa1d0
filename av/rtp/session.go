package rtp

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/rtcingest/reactor"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidSSRC indicates a zero source identifier.
	ErrInvalidSSRC = errors.New("invalid ssrc")

	// ErrInvalidClockRate indicates a zero clock rate.
	ErrInvalidClockRate = errors.New("invalid clock rate")
)

// Handler receives the output of a ReceiveStream.
type Handler interface {
	// OnPacket receives packets in strictly increasing extended-sequence order.
	OnPacket(info *PacketInfo)
	// OnLoss reports a gap of count packets starting at from that was skipped.
	// A count of zero marks a sequence discontinuity, such as a sender
	// restart, where no gap can be counted.
	OnLoss(ssrc uint32, from, count uint64)
}

type nopHandler struct{}

func (nopHandler) OnPacket(*PacketInfo)          {}
func (nopHandler) OnLoss(uint32, uint64, uint64) {}

// ReceiveConfig describes the source a ReceiveStream absorbs.
type ReceiveConfig struct {
	SSRC        uint32
	PayloadType uint8

	HasRTX         bool
	RTXSSRC        uint32
	RTXPayloadType uint8

	ClockRate uint32
	Tags      Tags
	Jitter    JitterConfig

	// TimeProvider supplies packet-independent time for OnTimer.
	TimeProvider reactor.TimeProvider
}

// Statistics are the receive counters of one source.
type Statistics struct {
	PacketsReceived  uint64
	BytesReceived    uint64
	PacketsDelivered uint64
	PacketsRecovered uint64
	PacketsLost      uint64
	Duplicates       uint64
	Late             uint64
	RTXReceived      uint64
	RTXDiscarded     uint64
	LossEvents       uint64
	// Outliers counts packets far outside the window that were dropped.
	Outliers uint64
	// Restarts counts sequence discontinuities confirmed by a second packet.
	Restarts uint64

	HighestSeq uint64
	Cycles     uint32
	// Jitter is the RFC 3550 interarrival jitter in clock units.
	Jitter float64

	LastSenderReport SenderReport
}

// SenderReport is the bookkeeping kept from the latest RTCP sender report.
type SenderReport struct {
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
	Arrival     time.Time
}

// CompactNTP returns the middle 32 bits of the NTP timestamp (the LSR field
// of a receiver report).
func (sr SenderReport) CompactNTP() uint32 {
	return uint32(sr.NTPTime >> 16)
}

// ReceiveStream is the receive context of one primary source: it absorbs
// primary and RTX packets, orders them in a JitterBuffer and reports gaps it
// had to skip.
//
// A packet further than the window depth from the stream is held back
// instead of moving the window. The next in-window packet drops it, while a
// second packet close to it confirms a sender restart: the window is flushed
// and numbering continues from the confirmed packets.
//
// A ReceiveStream is driven from the reactor goroutine and is not safe for
// concurrent use.
type ReceiveStream struct {
	cfg       ReceiveConfig
	tp        reactor.TimeProvider
	unwrapper SequenceUnwrapper
	buffer    *JitterBuffer
	handler   Handler
	stats     Statistics
	closed    bool

	// extShift maps unwrapped sequence numbers into the delivered numbering,
	// which stays continuous across restarts.
	extShift int64
	outlier  *Inbound

	lastArrival time.Time
	lastTS      uint32
	hasTransit  bool
}

// NewReceiveStream creates a receive context.
//
// Parameters:
//   - cfg: source identifiers, clock rate, tags and jitter window
//   - handler: receiver of ordered packets and loss reports; may be nil
//
// Returns:
//   - *ReceiveStream: New receive context
//   - error: construction error for a zero SSRC, zero clock rate or bad window
func NewReceiveStream(cfg ReceiveConfig, handler Handler) (*ReceiveStream, error) {
	if cfg.SSRC == 0 {
		return nil, fmt.Errorf("%w: primary ssrc is zero", ErrInvalidSSRC)
	}
	if cfg.HasRTX && cfg.RTXSSRC == 0 {
		return nil, fmt.Errorf("%w: rtx enabled without rtx ssrc", ErrInvalidSSRC)
	}
	if cfg.ClockRate == 0 {
		return nil, ErrInvalidClockRate
	}
	buffer, err := NewJitterBuffer(cfg.Jitter)
	if err != nil {
		return nil, fmt.Errorf("failed to create jitter buffer: %w", err)
	}
	if handler == nil {
		handler = nopHandler{}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewReceiveStream",
		"ssrc":       cfg.SSRC,
		"rtx_ssrc":   cfg.RTXSSRC,
		"has_rtx":    cfg.HasRTX,
		"media":      cfg.Tags.Media.String(),
		"clock_rate": cfg.ClockRate,
		"depth":      cfg.Jitter.Depth,
	}).Info("Creating receive stream")

	tp := cfg.TimeProvider
	if tp == nil {
		tp = reactor.RealTimeProvider{}
	}

	return &ReceiveStream{
		cfg:     cfg,
		tp:      tp,
		buffer:  buffer,
		handler: handler,
	}, nil
}

// SSRC returns the primary source identifier.
func (rs *ReceiveStream) SSRC() uint32 {
	return rs.cfg.SSRC
}

// AcceptPrimary absorbs a packet of the primary source.
func (rs *ReceiveStream) AcceptPrimary(in Inbound) {
	if rs.closed {
		return
	}
	pkt := in.Packet
	if pkt.SSRC != rs.cfg.SSRC {
		logrus.WithFields(logrus.Fields{
			"function": "ReceiveStream.AcceptPrimary",
			"ssrc":     pkt.SSRC,
			"expected": rs.cfg.SSRC,
		}).Warn("Dropping packet of a foreign source")
		return
	}
	if in.Arrival.IsZero() {
		in.Arrival = rs.tp.Now()
	}

	rs.stats.PacketsReceived++
	rs.stats.BytesReceived += uint64(len(pkt.Payload))

	if rs.outsideWindow(rs.extend(pkt.SequenceNumber)) {
		rs.holdOutlier(in)
		return
	}
	if rs.outlier != nil {
		rs.stats.Outliers++
		logrus.WithFields(logrus.Fields{
			"function": "ReceiveStream.AcceptPrimary",
			"ssrc":     rs.cfg.SSRC,
			"seq":      rs.outlier.Packet.SequenceNumber,
		}).Warn("Dropping packet outside the jitter window")
		rs.outlier = nil
	}

	ext := rs.unwrap(pkt.SequenceNumber)
	rs.updateJitter(in)

	rs.push(NewPacketInfo(in, ext, rs.cfg.Tags), "ReceiveStream.AcceptPrimary")
	rs.drain(in.Arrival)
}

// AcceptRedundancy absorbs an RTX packet. The original packet is restored
// and inserted only if its sequence number is still missing from the window.
func (rs *ReceiveStream) AcceptRedundancy(in Inbound) {
	if rs.closed {
		return
	}
	pkt := in.Packet
	if !rs.cfg.HasRTX || pkt.SSRC != rs.cfg.RTXSSRC {
		logrus.WithFields(logrus.Fields{
			"function": "ReceiveStream.AcceptRedundancy",
			"ssrc":     pkt.SSRC,
			"rtx_ssrc": rs.cfg.RTXSSRC,
			"has_rtx":  rs.cfg.HasRTX,
		}).Warn("Dropping redundancy packet of a foreign source")
		return
	}
	rs.stats.RTXReceived++
	if in.Arrival.IsZero() {
		in.Arrival = rs.tp.Now()
	}

	restored, osn, err := DecodeRTX(pkt, rs.cfg.SSRC, rs.cfg.PayloadType)
	if err != nil {
		// Padding-only RTX is used for bandwidth probing.
		rs.stats.RTXDiscarded++
		logrus.WithFields(logrus.Fields{
			"function": "ReceiveStream.AcceptRedundancy",
			"rtx_seq":  pkt.SequenceNumber,
			"error":    err.Error(),
		}).Debug("Discarding redundancy packet without payload")
		return
	}

	ext := rs.extend(osn)
	if !rs.buffer.Missing(ext) {
		rs.stats.RTXDiscarded++
		logrus.WithFields(logrus.Fields{
			"function": "ReceiveStream.AcceptRedundancy",
			"osn":      osn,
			"ext_seq":  ext,
			"next":     rs.buffer.Next(),
		}).Debug("Redundancy packet not needed")
		return
	}

	info := NewPacketInfo(Inbound{Packet: restored, Ext: in.Ext, Arrival: in.Arrival}, ext, rs.cfg.Tags)
	if rs.push(info, "ReceiveStream.AcceptRedundancy") == PushAccepted {
		rs.stats.PacketsRecovered++
	}
	rs.drain(in.Arrival)
}

// OnTimer ages the window, forcing out packets held behind a stale gap even
// when no new packet arrives.
func (rs *ReceiveStream) OnTimer() {
	if rs.closed {
		return
	}
	rs.drain(rs.tp.Now())
}

// OnSenderReport records the latest sender report of the primary source.
func (rs *ReceiveStream) OnSenderReport(sr *rtcp.SenderReport) {
	if rs.closed || sr == nil || sr.SSRC != rs.cfg.SSRC {
		return
	}
	rs.stats.LastSenderReport = SenderReport{
		NTPTime:     sr.NTPTime,
		RTPTime:     sr.RTPTime,
		PacketCount: sr.PacketCount,
		OctetCount:  sr.OctetCount,
		Arrival:     rs.tp.Now(),
	}
	logrus.WithFields(logrus.Fields{
		"function":     "ReceiveStream.OnSenderReport",
		"ssrc":         sr.SSRC,
		"rtp_time":     sr.RTPTime,
		"packet_count": sr.PacketCount,
	}).Debug("Sender report recorded")
}

// Stats returns a snapshot of the receive counters.
func (rs *ReceiveStream) Stats() Statistics {
	s := rs.stats
	s.HighestSeq = rs.highest()
	s.Cycles = rs.unwrapper.Cycles()
	return s
}

// Buffered returns the number of packets held in the window.
func (rs *ReceiveStream) Buffered() int {
	return rs.buffer.Len()
}

// Detach disconnects the handler. Later output is discarded.
func (rs *ReceiveStream) Detach() {
	rs.handler = nopHandler{}
}

// Close detaches the handler and releases every buffered packet.
func (rs *ReceiveStream) Close() {
	if rs.closed {
		return
	}
	rs.Detach()
	released := rs.buffer.Reset()
	rs.outlier = nil
	rs.closed = true

	logrus.WithFields(logrus.Fields{
		"function": "ReceiveStream.Close",
		"ssrc":     rs.cfg.SSRC,
		"released": released,
	}).Info("Receive stream closed")
}

func (rs *ReceiveStream) push(info *PacketInfo, function string) PushResult {
	result := rs.buffer.Push(info)
	switch result {
	case PushDuplicate:
		rs.stats.Duplicates++
	case PushLate:
		rs.stats.Late++
	}
	if result != PushAccepted {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"seq":      info.Packet.SequenceNumber,
			"ext_seq":  info.ExtSeq,
			"result":   result.String(),
		}).Debug("Packet not buffered")
	}
	return result
}

func (rs *ReceiveStream) drain(now time.Time) {
	rs.buffer.Drain(now, rs.deliver, rs.lost)
}

func (rs *ReceiveStream) deliver(info *PacketInfo) {
	rs.stats.PacketsDelivered++
	rs.handler.OnPacket(info)
}

func (rs *ReceiveStream) lost(from, count uint64) {
	rs.stats.PacketsLost += count
	rs.stats.LossEvents++
	logrus.WithFields(logrus.Fields{
		"function": "ReceiveStream.lost",
		"ssrc":     rs.cfg.SSRC,
		"from":     from,
		"count":    count,
	}).Warn("Jitter buffer skipped lost packets")
	rs.handler.OnLoss(rs.cfg.SSRC, from, count)
}

func (rs *ReceiveStream) extend(seq uint16) uint64 {
	return shiftExt(rs.unwrapper.Extend(seq), rs.extShift)
}

func (rs *ReceiveStream) unwrap(seq uint16) uint64 {
	return shiftExt(rs.unwrapper.Unwrap(seq), rs.extShift)
}

func (rs *ReceiveStream) highest() uint64 {
	return shiftExt(rs.unwrapper.Highest(), rs.extShift)
}

func shiftExt(ext uint64, shift int64) uint64 {
	v := int64(ext) + shift
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// outsideWindow reports whether ext is further than the window depth ahead of
// the highest packet seen or behind the next packet to deliver.
func (rs *ReceiveStream) outsideWindow(ext uint64) bool {
	if !rs.unwrapper.started {
		return false
	}
	depth := uint64(rs.cfg.Jitter.Depth)
	if highest := rs.highest(); ext > highest {
		return ext-highest > depth
	}
	next := rs.buffer.Next()
	return ext < next && next-ext > depth
}

// holdOutlier keeps in aside until another packet tells whether it was a
// stray or the first packet of a restarted sequence.
func (rs *ReceiveStream) holdOutlier(in Inbound) {
	seq := in.Packet.SequenceNumber
	if held := rs.outlier; held != nil {
		d := int(int16(seq - held.Packet.SequenceNumber))
		if d == 0 {
			rs.stats.Duplicates++
			return
		}
		if d >= -rs.cfg.Jitter.Depth && d <= rs.cfg.Jitter.Depth {
			rs.restart(*held, in, d)
			return
		}
		rs.stats.Outliers++
	}

	logrus.WithFields(logrus.Fields{
		"function": "ReceiveStream.holdOutlier",
		"ssrc":     rs.cfg.SSRC,
		"seq":      seq,
		"next":     rs.buffer.Next(),
		"highest":  rs.highest(),
	}).Debug("Holding packet outside the jitter window")
	rs.outlier = &in
}

// restart delivers what the window holds, then renumbers the source so that
// the earlier of held and in directly follows the last delivered packet. One
// loss signal marks the discontinuity.
func (rs *ReceiveStream) restart(held, in Inbound, d int) {
	rs.outlier = nil
	rs.stats.Restarts++
	rs.buffer.Flush(rs.deliver, rs.lost)

	lead, follow := held, in
	if d < 0 {
		lead, follow = in, held
	}
	from := rs.buffer.Next()
	rs.buffer.Reset()
	rs.unwrapper = SequenceUnwrapper{}
	rs.extShift = int64(from) - int64(rs.unwrapper.Unwrap(lead.Packet.SequenceNumber))
	rs.hasTransit = false

	logrus.WithFields(logrus.Fields{
		"function": "ReceiveStream.restart",
		"ssrc":     rs.cfg.SSRC,
		"seq":      lead.Packet.SequenceNumber,
		"ext_seq":  from,
	}).Warn("Sender sequence restarted")
	rs.lost(from, 0)

	for _, p := range []Inbound{lead, follow} {
		rs.updateJitter(p)
		rs.push(NewPacketInfo(p, rs.unwrap(p.Packet.SequenceNumber), rs.cfg.Tags), "ReceiveStream.restart")
	}
	rs.drain(in.Arrival)
}

// updateJitter maintains the RFC 3550 interarrival jitter estimate.
func (rs *ReceiveStream) updateJitter(in Inbound) {
	ts := in.Packet.Timestamp
	if rs.hasTransit {
		arrivalDelta := int64(in.Arrival.Sub(rs.lastArrival)) * int64(rs.cfg.ClockRate) / int64(time.Second)
		d := arrivalDelta - int64(int32(ts-rs.lastTS))
		if d < 0 {
			d = -d
		}
		rs.stats.Jitter += (float64(d) - rs.stats.Jitter) / 16
	}
	rs.lastArrival = in.Arrival
	rs.lastTS = ts
	rs.hasTransit = true
}

package rtp

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MinJitterDepth is the smallest window that can reorder three packets.
	MinJitterDepth = 3

	// DefaultJitterDepth is the default window span in packets.
	DefaultJitterDepth = 256

	// DefaultJitterMaxDelay is how long a gap may hold back buffered packets.
	DefaultJitterMaxDelay = 300 * time.Millisecond
)

// ErrInvalidJitterConfig indicates an unusable jitter buffer configuration.
var ErrInvalidJitterConfig = errors.New("invalid jitter buffer configuration")

// JitterConfig bounds the ordering window.
type JitterConfig struct {
	// Depth is the largest span of extended sequence numbers, from the next
	// expected packet to the newest buffered one, held before a forced flush.
	Depth int
	// MaxDelay is how long the oldest buffered packet may wait behind a gap.
	MaxDelay time.Duration
}

// DefaultJitterConfig returns the default window bounds.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{Depth: DefaultJitterDepth, MaxDelay: DefaultJitterMaxDelay}
}

// Validate checks the configuration.
func (c JitterConfig) Validate() error {
	if c.Depth < MinJitterDepth {
		return fmt.Errorf("%w: depth %d below minimum %d", ErrInvalidJitterConfig, c.Depth, MinJitterDepth)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("%w: max delay %v", ErrInvalidJitterConfig, c.MaxDelay)
	}
	return nil
}

// PushResult reports what the buffer did with a packet.
type PushResult int

const (
	// PushAccepted means the packet is buffered for delivery.
	PushAccepted PushResult = iota
	// PushDuplicate means the sequence number is already buffered.
	PushDuplicate
	// PushLate means the sequence number was already delivered or skipped.
	PushLate
)

func (r PushResult) String() string {
	switch r {
	case PushAccepted:
		return "accepted"
	case PushDuplicate:
		return "duplicate"
	default:
		return "late"
	}
}

// JitterBuffer reorders packets by extended sequence number.
//
// Packets leave strictly in increasing extended-sequence order. A gap holds
// back everything behind it until the gap is filled, the window span exceeds
// Depth, or the oldest held packet has waited MaxDelay. In the last two cases
// the gap is skipped and reported as lost.
//
// The buffer keeps a sorted slice of sequence numbers with binary search
// insertion. It is not safe for concurrent use; it runs on the reactor.
type JitterBuffer struct {
	cfg     JitterConfig
	entries map[uint64]*PacketInfo
	order   []uint64
	next    uint64
	highest uint64
	started bool
}

// NewJitterBuffer creates a jitter buffer.
//
// Parameters:
//   - cfg: window bounds, validated
//
// Returns:
//   - *JitterBuffer: New jitter buffer instance
//   - error: ErrInvalidJitterConfig when cfg is unusable
func NewJitterBuffer(cfg JitterConfig) (*JitterBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JitterBuffer{
		cfg:     cfg,
		entries: make(map[uint64]*PacketInfo),
	}, nil
}

// Push inserts a packet into the window.
func (jb *JitterBuffer) Push(info *PacketInfo) PushResult {
	ext := info.ExtSeq
	if !jb.started {
		jb.started = true
		jb.next = ext
		jb.highest = ext
	}
	if ext < jb.next {
		return PushLate
	}
	if _, ok := jb.entries[ext]; ok {
		return PushDuplicate
	}

	jb.entries[ext] = info
	i := sort.Search(len(jb.order), func(i int) bool { return jb.order[i] >= ext })
	jb.order = append(jb.order, 0)
	copy(jb.order[i+1:], jb.order[i:])
	jb.order[i] = ext

	if ext > jb.highest {
		jb.highest = ext
	}
	return PushAccepted
}

// Missing reports whether ext is still awaited: not yet delivered or skipped
// and not buffered.
func (jb *JitterBuffer) Missing(ext uint64) bool {
	if !jb.started || ext < jb.next {
		return false
	}
	_, ok := jb.entries[ext]
	return !ok
}

// Next returns the next extended sequence number to be delivered.
func (jb *JitterBuffer) Next() uint64 {
	return jb.next
}

// Len returns the number of buffered packets.
func (jb *JitterBuffer) Len() int {
	return len(jb.order)
}

// Drain delivers every packet that can leave the window at time now.
//
// deliver receives packets in increasing extended-sequence order. lost is
// called once per skipped gap with the first missing sequence number and the
// gap length, before the packet that follows the gap is delivered.
func (jb *JitterBuffer) Drain(now time.Time, deliver func(*PacketInfo), lost func(from, count uint64)) {
	for len(jb.order) > 0 {
		head := jb.order[0]
		if head == jb.next {
			info := jb.entries[head]
			delete(jb.entries, head)
			jb.order = jb.order[1:]
			jb.next++
			deliver(info)
			continue
		}

		if !jb.overdue(now, head) {
			return
		}

		gap := head - jb.next
		logrus.WithFields(logrus.Fields{
			"function":  "JitterBuffer.Drain",
			"from":      jb.next,
			"count":     gap,
			"buffered":  len(jb.order),
			"span":      jb.highest - jb.next + 1,
			"max_delay": jb.cfg.MaxDelay.String(),
		}).Debug("Skipping unrecoverable gap")
		from := jb.next
		jb.next = head
		lost(from, gap)
	}
}

// Flush delivers every buffered packet regardless of gaps and age. Gaps
// between buffered packets are reported through lost.
func (jb *JitterBuffer) Flush(deliver func(*PacketInfo), lost func(from, count uint64)) {
	for len(jb.order) > 0 {
		head := jb.order[0]
		if head != jb.next {
			from := jb.next
			jb.next = head
			lost(from, head-from)
		}
		info := jb.entries[head]
		delete(jb.entries, head)
		jb.order = jb.order[1:]
		jb.next++
		deliver(info)
	}
}

func (jb *JitterBuffer) overdue(now time.Time, head uint64) bool {
	if jb.highest-jb.next+1 > uint64(jb.cfg.Depth) {
		return true
	}
	return now.Sub(jb.entries[head].Arrival) >= jb.cfg.MaxDelay
}

// Reset releases every buffered packet and forgets the delivery position.
func (jb *JitterBuffer) Reset() int {
	n := len(jb.order)
	jb.entries = make(map[uint64]*PacketInfo)
	jb.order = nil
	jb.started = false
	jb.next = 0
	jb.highest = 0
	return n
}

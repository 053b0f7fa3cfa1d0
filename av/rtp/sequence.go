package rtp

// seqCycleBase starts the extended counter one cycle in so that packets
// reordered ahead of the first one received still extend to positive values.
const seqCycleBase = 1 << 16

// SequenceUnwrapper converts 16-bit RTP sequence numbers into extended
// sequence numbers that never wrap.
//
// The highest extended value seen only moves forward. A sequence number is
// placed in the cycle that puts it closest to that highest value, so a jump of
// less than half the sequence space backwards is treated as reordering rather
// than as a wrap.
type SequenceUnwrapper struct {
	started bool
	highest uint64
}

// Extend computes the extended value of seq without updating state.
func (u *SequenceUnwrapper) Extend(seq uint16) uint64 {
	if !u.started {
		return seqCycleBase + uint64(seq)
	}
	delta := int64(int16(seq - uint16(u.highest)))
	ext := int64(u.highest) + delta
	if ext < 0 {
		return 0
	}
	return uint64(ext)
}

// Unwrap computes the extended value of seq and advances the highest value
// when seq is newer.
func (u *SequenceUnwrapper) Unwrap(seq uint16) uint64 {
	ext := u.Extend(seq)
	if !u.started || ext > u.highest {
		u.highest = ext
		u.started = true
	}
	return ext
}

// Highest returns the highest extended sequence number seen.
func (u *SequenceUnwrapper) Highest() uint64 {
	return u.highest
}

// Cycles returns how many times the 16-bit sequence number has wrapped.
func (u *SequenceUnwrapper) Cycles() uint32 {
	if !u.started {
		return 0
	}
	return uint32(u.highest>>16) - 1
}

// TimestampUnwrapper extends 32-bit RTP timestamps so that access-unit times
// keep increasing across the wrap. The first timestamp is kept as is.
type TimestampUnwrapper struct {
	started bool
	last    uint32
	ext     int64
}

// Unwrap returns the extended value of ts.
func (u *TimestampUnwrapper) Unwrap(ts uint32) int64 {
	if !u.started {
		u.started = true
		u.last = ts
		u.ext = int64(ts)
		return u.ext
	}
	u.ext += int64(int32(ts - u.last))
	u.last = ts
	return u.ext
}

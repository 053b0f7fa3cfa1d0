package media

// Emitter receives the output of a depacketizer.
//
// Implementations run on the same reactor goroutine as the depacketizer and
// take ownership of every packet they are handed.
type Emitter interface {
	// EmitPacket receives one access unit or synthesized header unit.
	EmitPacket(pkt *Packet)
	// RequestReset signals that output for ssrc was interrupted by loss and a
	// fresh keyframe is needed.
	RequestReset(ssrc uint32)
}

type nopEmitter struct{}

func (nopEmitter) EmitPacket(*Packet)  {}
func (nopEmitter) RequestReset(uint32) {}

// NopEmitter returns an Emitter that discards everything. Depacketizers
// switch to it when their owner detaches.
func NopEmitter() Emitter {
	return nopEmitter{}
}

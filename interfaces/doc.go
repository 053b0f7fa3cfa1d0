// Package interfaces defines the external collaborators of a published
// track: the room fan-out, the container multiplexer, the control transport
// that carries keyframe requests and an optional raw RTP relay.
//
// # Core Interfaces
//
// [RoomSink] receives every tagged packet together with its routing keys.
// [ContainerSink] receives the same packet once the container tag body has
// been attached:
//
//	type flvFile struct{ rec *flv.Recorder }
//
//	func (f *flvFile) OnContainerPacket(room, user string, sk media.StreamKind, pkt *media.Packet) {
//	    _ = f.rec.Write(pkt)
//	}
//
// [ControlTransport] is the send side of RTCP. A *webrtc.PeerConnection can be
// used directly.
//
// [SinkConfig] groups the collaborators and fills in no-op implementations
// for the ones left nil. Simulated implementations for tests live in the
// testing package.
package interfaces

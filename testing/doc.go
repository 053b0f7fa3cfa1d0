// Package testing provides simulated collaborators and capture replay for
// deterministic tests of the ingest pipeline.
//
// # Overview
//
// A publisher talks to three collaborators: the room that fans packets out,
// the container multiplexer and the control transport that carries keyframe
// requests back to the sender. This package implements all three in memory
// so tests can inspect what the pipeline produced without a media server or
// a peer connection.
//
//   - RecordingRoom implements interfaces.RoomSink and keeps every packet
//     with its routing fields.
//   - RecordingContainer implements interfaces.ContainerSink and keeps only
//     packets that carry a container tag body.
//   - SimulatedControlTransport implements interfaces.ControlTransport. It
//     marshals each control packet so malformed packets fail as they would
//     on the wire, and can be told to fail every send.
//
// # Usage
//
//	room := testing.NewRecordingRoom()
//	control := testing.NewSimulatedControlTransport()
//	pub, err := av.NewPublisher(loop, track, route, av.DefaultConfig(), interfaces.SinkConfig{
//	    Room:      room,
//	    Transport: control,
//	})
//
//	// ... feed RTP ...
//
//	if len(control.PictureLossIndications()) != 1 {
//	    t.Error("expected one keyframe request")
//	}
//
// # Capture Replay
//
// PcapSource reads UDP datagrams from pcap or pcapng captures, for example a
// Wireshark recording of a browser publishing to the server. WriteCapture
// produces small pcap fixtures from raw payloads.
//
// # Thread Safety
//
// The recording sinks and the simulated transport are safe for concurrent
// use. PcapSource is not.
package testing

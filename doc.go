// Package rtcingest implements the publish path of a WebRTC media gateway.
//
// A Session receives the decrypted RTP and RTCP of a peer connection, routes
// every packet to the publisher of its track and delivers reconstructed,
// FLV-tagged access units to a room and a container multiplexer. Each
// publisher reorders its stream, recovers losses from the retransmission
// stream, depacketizes H.264 or Opus and requests keyframes from the sender.
//
// # Getting Started
//
//	options := rtcingest.NewOptions()
//	options.Room = room
//	options.Container = recorder
//
//	session, err := rtcingest.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	_, err = session.AddTrackInfo(media.Route{Room: "live", User: "alice"}, av.TrackInfo{
//	    Media:     "video",
//	    ClockRate: 90000,
//	    Codecs:    []av.CodecInfo{{PayloadType: 102, Name: "H264"}, {PayloadType: 103, Name: "rtx"}},
//	    SSRCGroups: []av.SSRCGroup{{Semantics: "FID", SSRCs: []uint32{ssrc, rtxSSRC}}},
//	})
//
//	// Feed datagrams from a shared RTP/RTCP socket.
//	session.HandlePacket(buf, time.Now())
//
//	// Drive the publisher timers.
//	for session.IsRunning() {
//	    session.Iterate()
//	    time.Sleep(session.IterationInterval())
//	}
//
// # Core Types
//
//   - [Session]: publishers keyed by source identifier
//   - [Options]: collaborators and publisher configuration
//   - [av.Publisher]: the per-track pipeline
//
// # Peer Connections
//
// With pion/webrtc the session is fed by a transport.PublishInterceptor,
// which also becomes the control transport for keyframe requests:
//
//	tap := transport.NewPublishInterceptor(session, func(info *interceptor.StreamInfo) {
//	    session.AddTrackInfo(route, transport.TrackInfoFromStream(info, ""))
//	})
//	session.SetControlTransport(tap)
//
// # Deterministic Testing
//
// Options.TimeProvider replaces the wall clock. Tests advance a fake clock
// and call Iterate to fire publisher timers.
//
// # Thread Safety
//
// All Session methods are safe for concurrent use. Publishers returned by
// AddTrack run under the session lock and must only be used through the
// session once it is running.
package rtcingest

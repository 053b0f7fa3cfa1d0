// Package av implements the publish-path ingest pipeline of one inbound
// WebRTC track.
//
// # Architecture
//
// A Publisher owns every stage of a track and runs them on a reactor loop:
//
//   - Demuxer: classifies packets as primary, redundancy (RTX) or unknown
//   - rtp.ReceiveStream: reorders by extended sequence number, restores
//     RTX payloads and reports unrecoverable gaps
//   - depacketizer: video.H264Depacketizer or audio.OpusDepacketizer,
//     chosen from the track codec at construction
//   - Tagger: rescales timestamps to milliseconds, stamps the room/user
//     route, attaches the FLV tag body and delivers to the sinks
//   - KeyframeScheduler: picture loss indications every sixth tick and on
//     every loss of a video track
//
// # Sub-Packages
//
//   - av/rtp: extended sequence numbers, RTX decoding, jitter buffer, receive stream
//   - av/video: H.264 depacketization and parameter sets
//   - av/audio: Opus depacketization and OpusHead
//
// # Admitting a Track
//
// Tracks are described once, either from signaling data or from a pion
// receiver:
//
//	track, err := av.NewTrackDescriptor(av.TrackInfo{
//	    Media:     "video",
//	    ClockRate: 90000,
//	    Codecs:    []av.CodecInfo{{PayloadType: 102, Name: "H264"}, {PayloadType: 103, Name: "rtx"}},
//	    SSRCGroups: []av.SSRCGroup{{Semantics: "FID", SSRCs: []uint32{1111, 2222}}},
//	})
//	if err != nil {
//	    return err
//	}
//	pub, err := av.NewPublisher(loop, track, media.Route{Room: "demo", User: "alice"}, av.DefaultConfig(), sinks)
//
// Packets are then fed with HandleRTP and sender reports with
// OnSenderReport, both from the loop goroutine. Close stops the timer,
// then releases the depacketizer, then the receive stream.
//
// # Error Handling
//
// Only construction fails. Malformed or unidentified packets are dropped,
// logged and counted in Stats.
package av

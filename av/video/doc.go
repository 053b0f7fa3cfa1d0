// Package video turns ordered H.264 RTP payloads into access units.
//
// H264Depacketizer accepts single NALU, STAP-A and FU-A payloads and emits
// each access unit with 4-byte NALU lengths. SPS and PPS are kept out of
// the access units and cached in a ParameterSetCache; a keyframe is preceded
// by an AVC decoder configuration record built from that cache:
//
//	d := video.NewH264Depacketizer(video.H264Options{}, emitter)
//	for info := range ordered {
//	    d.Depacketize(info)
//	}
//
// After loss the partial access unit is dropped, a reset is requested from
// the emitter and output resumes with the next keyframe.
package video

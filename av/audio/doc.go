// Package audio depacketizes Opus RTP payloads.
//
// Every Opus payload is one access unit. The first one is preceded by an
// OpusHead identification header whose channel count comes from
// configuration or, when unknown, from a probe of the first packet.
// Audio loss is counted but never triggers a recovery request.
package audio

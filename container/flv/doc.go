// Package flv maps media packets onto FLV tags.
//
// Encoder produces the tag body handed to container sinks: AVC sequence
// headers and NALU frames for H.264, and Opus frames with the codec id 13
// extension. Recorder writes complete FLV files from those tags.
package flv

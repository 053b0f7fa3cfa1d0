// Package ts records the H.264 track of a publisher as MPEG-TS.
package ts

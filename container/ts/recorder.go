package ts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/rtcingest/media"
	"github.com/sirupsen/logrus"
	"github.com/yapingcat/gomedia/codec"
	"github.com/yapingcat/gomedia/mpeg2"
)

var (
	// ErrBadSequenceHeader indicates a decoder configuration record that cannot be parsed.
	ErrBadSequenceHeader = errors.New("bad avc sequence header")

	// ErrBadAccessUnit indicates a length-prefixed access unit with inconsistent lengths.
	ErrBadAccessUnit = errors.New("bad avc access unit")
)

// Recorder writes the H.264 track of a publisher as an MPEG-TS stream.
// Audio packets are ignored. Parameter sets from the last sequence header
// are repeated in front of every keyframe.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	muxer  *mpeg2.TSMuxer
	pid    uint16
	werr   error
	closed bool

	sps, pps [][]byte
	base     int64
	hasBase  bool
	waitKey  bool

	frames  uint64
	skipped uint64
}

// NewRecorder creates a recorder writing 188-byte TS packets to w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	r := &Recorder{
		w:       w,
		muxer:   mpeg2.NewTSMuxer(),
		waitKey: true,
	}
	r.pid = r.muxer.AddStream(mpeg2.TS_STREAM_H264)
	r.muxer.OnPacket = r.onPacket

	logrus.WithFields(logrus.Fields{
		"function": "NewRecorder",
		"pid":      r.pid,
	}).Info("TS recorder started")
	return r, nil
}

func (r *Recorder) onPacket(pkg []byte) {
	if r.werr != nil {
		return
	}
	if _, err := r.w.Write(pkg); err != nil {
		r.werr = err
	}
}

// Write muxes one packet. Audio packets are skipped.
func (r *Recorder) Write(pkt *media.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return io.ErrClosedPipe
	}
	if r.werr != nil {
		return r.werr
	}
	if pkt.Codec != media.CodecKindH264 {
		r.skipped++
		return nil
	}
	if pkt.Header {
		return r.updateParameterSets(pkt.Payload)
	}

	if r.waitKey {
		if !pkt.KeyFrame || len(r.sps) == 0 {
			r.skipped++
			return nil
		}
		r.waitKey = false
	}

	frame, err := annexB(pkt.Payload)
	if err != nil {
		return err
	}
	if pkt.KeyFrame {
		var prefix []byte
		for _, ps := range r.sps {
			prefix = append(prefix, ps...)
		}
		for _, ps := range r.pps {
			prefix = append(prefix, ps...)
		}
		frame = append(prefix, frame...)
	}

	if !r.hasBase {
		r.base = pkt.DTS
		r.hasBase = true
	}
	dts := rebase(pkt.DTS, r.base)
	pts := rebase(pkt.PTS, r.base)

	if err := r.muxer.Write(r.pid, frame, pts, dts); err != nil {
		return fmt.Errorf("failed to mux frame: %w", err)
	}
	r.frames++
	return r.werr
}

func rebase(v, base int64) uint64 {
	if v < base {
		return 0
	}
	return uint64(v - base)
}

// updateParameterSets extracts start-code framed SPS and PPS from an AVC
// decoder configuration record.
func (r *Recorder) updateParameterSets(record []byte) (err error) {
	if len(record) < 7 {
		return fmt.Errorf("%w: %d bytes", ErrBadSequenceHeader, len(record))
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrBadSequenceHeader, rec)
		}
	}()

	sps, pps := codec.CovertExtradata(record)
	if len(sps) == 0 || len(pps) == 0 {
		return fmt.Errorf("%w: no parameter sets", ErrBadSequenceHeader)
	}
	r.sps, r.pps = sps, pps

	logrus.WithFields(logrus.Fields{
		"function": "Recorder.updateParameterSets",
		"sps":      len(sps),
		"pps":      len(pps),
	}).Debug("TS recorder parameter sets updated")
	return nil
}

// annexB converts 4-byte length-prefixed NALUs to start-code framing.
func annexB(avcc []byte) ([]byte, error) {
	out := append([]byte(nil), avcc...)
	for off := 0; off < len(out); {
		if off+4 > len(out) {
			return nil, fmt.Errorf("%w: truncated length at %d", ErrBadAccessUnit, off)
		}
		n := int(binary.BigEndian.Uint32(out[off:]))
		if n == 0 || off+4+n > len(out) {
			return nil, fmt.Errorf("%w: nalu of %d bytes at %d", ErrBadAccessUnit, n, off)
		}
		codec.CovertAVCCToAnnexB(out[off:])
		off += 4 + n
	}
	return out, nil
}

// OnContainerPacket records pkt; errors are logged.
func (r *Recorder) OnContainerPacket(room, user string, streamKind media.StreamKind, pkt *media.Packet) {
	if err := r.Write(pkt); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Recorder.OnContainerPacket",
			"room":     room,
			"user":     user,
			"stream":   streamKind.String(),
			"error":    err.Error(),
		}).Error("Failed to record packet")
	}
}

// Frames returns the number of frames muxed.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close stops the recorder. The underlying writer is not closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	logrus.WithFields(logrus.Fields{
		"function": "Recorder.Close",
		"frames":   r.frames,
		"skipped":  r.skipped,
	}).Info("TS recorder closed")
	return r.werr
}

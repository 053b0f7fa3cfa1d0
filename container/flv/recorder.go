package flv

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/opd-ai/rtcingest/media"
	"github.com/opd-ai/rtcingest/reactor"
	oryxflv "github.com/ossrs/go-oryx-lib/flv"
	"github.com/sirupsen/logrus"
)

// Recorder writes tagged packets of one publisher as an FLV byte stream.
//
// Tag timestamps are the packet DTS in milliseconds on one recording
// timeline. The tracks of a peer connection start their clocks at unrelated
// values, so each media kind is anchored where its first packet arrived
// relative to the first packet recorded. Packets without a Tag body are encoded with
// the recorder's own Encoder.
type Recorder struct {
	mu      sync.Mutex
	muxer   oryxflv.Muxer
	encoder *Encoder
	bases   map[media.MediaKind]int64
	tp      reactor.TimeProvider
	start   time.Time
	started bool
	tags    uint64
	bytes   uint64
	closed  bool
}

// NewRecorder writes the FLV file header to w and returns a recorder for
// the announced tracks.
//
// Parameters:
//   - w: destination of the FLV stream
//   - hasVideo, hasAudio: track flags written to the file header
//
// Returns:
//   - *Recorder: recorder ready for Write
//   - error: failure to write the header
func NewRecorder(w io.Writer, hasVideo, hasAudio bool) (*Recorder, error) {
	muxer, err := oryxflv.NewMuxer(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create flv muxer: %w", err)
	}
	if err := muxer.WriteHeader(hasVideo, hasAudio); err != nil {
		return nil, fmt.Errorf("failed to write flv header: %w", err)
	}
	encoder, err := NewEncoder()
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewRecorder",
		"has_video": hasVideo,
		"has_audio": hasAudio,
	}).Info("FLV recorder started")

	return &Recorder{
		muxer:   muxer,
		encoder: encoder,
		bases:   make(map[media.MediaKind]int64),
		tp:      reactor.RealTimeProvider{},
	}, nil
}

// SetTimeProvider replaces the clock that anchors media kinds on the
// recording timeline, for example with capture time during replay.
func (r *Recorder) SetTimeProvider(tp reactor.TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tp == nil {
		tp = reactor.RealTimeProvider{}
	}
	r.tp = tp
}

// Write appends pkt as one FLV tag.
func (r *Recorder) Write(pkt *media.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return io.ErrClosedPipe
	}

	tag := pkt.Tag
	if len(tag) == 0 {
		var err error
		if tag, err = r.encoder.Encode(pkt); err != nil {
			return err
		}
	}
	if len(tag) == 0 {
		return ErrMissingTag
	}

	base, ok := r.bases[pkt.Media]
	if !ok {
		now := r.tp.Now()
		if !r.started {
			r.started = true
			r.start = now
		}
		base = pkt.DTS - now.Sub(r.start).Milliseconds()
		r.bases[pkt.Media] = base
	}
	ts := pkt.DTS - base
	if ts < 0 {
		ts = 0
	}

	if err := r.muxer.WriteTag(TagType(pkt), uint32(ts), tag); err != nil {
		return fmt.Errorf("failed to write flv tag: %w", err)
	}
	r.tags++
	r.bytes += uint64(len(tag))
	return nil
}

// OnContainerPacket records pkt; write errors are logged.
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

// Tags returns the number of tags written.
func (r *Recorder) Tags() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags
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
		"tags":     r.tags,
		"bytes":    r.bytes,
	}).Info("FLV recorder closed")
	return r.muxer.Close()
}

package ts

import (
	"bytes"
	"testing"

	"github.com/opd-ai/rtcingest/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yapingcat/gomedia/mpeg2"
)

var (
	sps = []byte{0x67, 0x42, 0xC0, 0x1F, 0x8C, 0x8D, 0x40, 0x50, 0x1E, 0xD0}
	pps = []byte{0x68, 0xCE, 0x3C, 0x80}
)

func sequenceHeader() []byte {
	b := []byte{0x01, sps[1], sps[2], sps[3], 0xFF, 0xE1, 0x00, byte(len(sps))}
	b = append(b, sps...)
	b = append(b, 0x01, 0x00, byte(len(pps)))
	return append(b, pps...)
}

func avcc(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, byte(len(n)>>24), byte(len(n)>>16), byte(len(n)>>8), byte(len(n)))
		out = append(out, n...)
	}
	return out
}

func TestAnnexB(t *testing.T) {
	out, err := annexB(avcc([]byte{0x65, 0x01}, []byte{0x41, 0x02, 0x03}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x65, 0x01, 0, 0, 0, 1, 0x41, 0x02, 0x03}, out)

	_, err = annexB([]byte{0, 0, 0, 9, 0x65})
	assert.ErrorIs(t, err, ErrBadAccessUnit)
}

func TestRecorderMuxesVideo(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	require.NoError(t, err)

	idr := append([]byte{0x65}, bytes.Repeat([]byte{0x88}, 400)...)
	inter := append([]byte{0x41}, bytes.Repeat([]byte{0x99}, 200)...)

	require.NoError(t, rec.Write(&media.Packet{Codec: media.CodecKindH264, Media: media.MediaKindVideo, KeyFrame: true, DTS: 10, PTS: 10, Payload: avcc(idr)}))
	assert.Equal(t, uint64(0), rec.Frames(), "keyframe before sequence header is skipped")

	require.NoError(t, rec.Write(&media.Packet{Codec: media.CodecKindH264, Media: media.MediaKindVideo, Header: true, DTS: 1000, Payload: sequenceHeader()}))
	require.NoError(t, rec.Write(&media.Packet{Codec: media.CodecKindH264, Media: media.MediaKindVideo, KeyFrame: true, DTS: 1000, PTS: 1000, Payload: avcc(idr)}))
	require.NoError(t, rec.Write(&media.Packet{Codec: media.CodecKindOpus, Media: media.MediaKindAudio, DTS: 1000, Payload: []byte{0xF8}}))
	require.NoError(t, rec.Write(&media.Packet{Codec: media.CodecKindH264, Media: media.MediaKindVideo, DTS: 1033, PTS: 1033, Payload: avcc(inter)}))
	require.NoError(t, rec.Close())

	assert.Equal(t, uint64(2), rec.Frames())
	out := buf.Bytes()
	require.NotEmpty(t, out)
	require.Zero(t, len(out)%188)
	for i := 0; i < len(out); i += 188 {
		assert.Equal(t, byte(0x47), out[i], "sync byte of packet %d", i/188)
	}

	types := map[byte]bool{}
	demux := mpeg2.NewTSDemuxer()
	demux.OnFrame = func(cid mpeg2.TS_STREAM_TYPE, frame []byte, pts, dts uint64) {
		assert.Equal(t, mpeg2.TS_STREAM_H264, cid)
		for i := 0; i+3 < len(frame); i++ {
			if frame[i] == 0 && frame[i+1] == 0 && frame[i+2] == 1 {
				types[frame[i+3]&0x1F] = true
			}
		}
	}
	_ = demux.Input(bytes.NewReader(out))

	assert.True(t, types[7], "sps repeated before keyframe")
	assert.True(t, types[8], "pps repeated before keyframe")
	assert.True(t, types[5], "idr")
}

func TestRecorderRejectsBadHeader(t *testing.T) {
	rec, err := NewRecorder(&bytes.Buffer{})
	require.NoError(t, err)

	err = rec.Write(&media.Packet{Codec: media.CodecKindH264, Header: true, Payload: []byte{0x01, 0x42}})
	assert.ErrorIs(t, err, ErrBadSequenceHeader)
}

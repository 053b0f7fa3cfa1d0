package flv

import (
	"errors"
	"fmt"

	"github.com/opd-ai/rtcingest/media"
	oryxflv "github.com/ossrs/go-oryx-lib/flv"
)

var (
	// ErrUnsupportedCodec indicates a codec without an FLV tag mapping.
	ErrUnsupportedCodec = errors.New("codec has no flv mapping")

	// ErrMissingTag indicates a packet reached a writer without a tag body.
	ErrMissingTag = errors.New("packet has no flv tag body")
)

// opusHeadChannels is the offset of the channel count inside OpusHead.
const opusHeadChannels = 9

// Encoder wraps media packets into FLV tag bodies. Video uses the AVC
// layout; Opus uses the codec id 13 extension with an explicit 48 kHz
// sampling-rate byte.
//
// An Encoder remembers the channel layout announced by the last OpusHead,
// so one Encoder must be used per track.
type Encoder struct {
	video  oryxflv.VideoPackager
	audio  oryxflv.AudioPackager
	stereo bool
}

// NewEncoder creates an FLV tag encoder.
func NewEncoder() (*Encoder, error) {
	video, err := oryxflv.NewVideoPackager()
	if err != nil {
		return nil, fmt.Errorf("failed to create video packager: %w", err)
	}
	audio, err := oryxflv.NewAudioPackager()
	if err != nil {
		return nil, fmt.Errorf("failed to create audio packager: %w", err)
	}
	return &Encoder{video: video, audio: audio, stereo: true}, nil
}

// Encode returns the FLV tag body for pkt.
func (e *Encoder) Encode(pkt *media.Packet) ([]byte, error) {
	switch pkt.Codec {
	case media.CodecKindH264:
		return e.encodeVideo(pkt)
	case media.CodecKindOpus:
		return e.encodeAudio(pkt)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, pkt.Codec)
	}
}

func (e *Encoder) encodeVideo(pkt *media.Packet) ([]byte, error) {
	frame := &oryxflv.VideoFrame{
		CodecID:   oryxflv.VideoCodecAVC,
		FrameType: oryxflv.VideoFrameTypeInterframe,
		Trait:     oryxflv.VideoFrameTraitNALU,
		CTS:       int32(pkt.PTS - pkt.DTS),
		Raw:       pkt.Payload,
	}
	if pkt.KeyFrame || pkt.Header {
		frame.FrameType = oryxflv.VideoFrameTypeKeyframe
	}
	if pkt.Header {
		frame.Trait = oryxflv.VideoFrameTraitSequenceHeader
		frame.CTS = 0
	}
	return e.video.Encode(frame)
}

func (e *Encoder) encodeAudio(pkt *media.Packet) ([]byte, error) {
	if pkt.Header && len(pkt.Payload) > opusHeadChannels {
		e.stereo = pkt.Payload[opusHeadChannels] > 1
	}

	frame := &oryxflv.AudioFrame{
		SoundFormat: oryxflv.AudioCodecOpus,
		SoundRate:   oryxflv.AudioSamplingRateFB48kHz,
		SoundSize:   oryxflv.AudioSampleBits16bits,
		SoundType:   oryxflv.AudioChannelsMono,
		Trait:       oryxflv.AudioFrameTraitOpusRaw | oryxflv.AudioFrameTraitOpusSamplingRate,
		Raw:         pkt.Payload,
	}
	if e.stereo {
		frame.SoundType = oryxflv.AudioChannelsStereo
	}
	if pkt.Header {
		frame.Trait = oryxflv.AudioFrameTraitSequenceHeader
	}
	return e.audio.Encode(frame)
}

// TagType returns the FLV tag type carrying pkt.
func TagType(pkt *media.Packet) oryxflv.TagType {
	if pkt.Media == media.MediaKindVideo {
		return oryxflv.TagTypeVideo
	}
	return oryxflv.TagTypeAudio
}

package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
	"github.com/yapingcat/gomedia/codec"
)

const (
	// OpusSampleRate is the RTP clock and input rate advertised in OpusHead.
	OpusSampleRate = 48000

	// OpusPreSkip is the decoder pre-skip in 48 kHz samples.
	OpusPreSkip = 312

	// DefaultOpusChannels is used when the channel count is neither configured nor probed.
	DefaultOpusChannels = 2

	// opusHeadSize is the size of an OpusHead with channel mapping family 0.
	opusHeadSize = 19
)

// ErrInvalidChannels indicates a channel count OpusHead cannot describe.
var ErrInvalidChannels = errors.New("invalid opus channel count")

// OpusHead builds the identification header for a stream with the given
// channel count: version 1, pre-skip 312, 48 kHz input, mapping family 0.
func OpusHead(channels int) ([]byte, error) {
	if channels < 1 || channels > 2 {
		return nil, ErrInvalidChannels
	}
	ctx := &codec.OpusContext{
		ChannelCount: channels,
		Preskip:      OpusPreSkip,
		SampleRate:   OpusSampleRate,
	}
	return ctx.WriteOpusExtraData(), nil
}

// FrameSamples returns the number of 48 kHz samples carried by one Opus
// packet, derived from its TOC byte. ok is false for packets too short to
// carry a TOC (or a frame count byte for code 3).
func FrameSamples(packet []byte) (samples uint64, ok bool) {
	if len(packet) == 0 {
		return 0, false
	}
	if packet[0]&0x03 == 3 && len(packet) < 2 {
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			samples, ok = 0, false
		}
	}()
	return codec.OpusPacketDuration(packet), true
}

// ChannelProbe learns the channel layout of a stream from its first packet.
type ChannelProbe struct {
	decoder opus.Decoder
	out     []byte
}

// NewChannelProbe creates a probe backed by a pure Go Opus decoder.
func NewChannelProbe() *ChannelProbe {
	return &ChannelProbe{
		decoder: opus.NewDecoder(),
		out:     make([]byte, 1920*2*2),
	}
}

// Channels returns 1 or 2 for packet.
//
// The decoder only understands SILK frames; for anything it rejects the
// stereo flag of the TOC byte is used instead.
func (p *ChannelProbe) Channels(packet []byte) int {
	if len(packet) == 0 {
		return DefaultOpusChannels
	}

	bandwidth, stereo, err := p.decode(packet)
	if err != nil {
		stereo = packet[0]&0x04 != 0
		logrus.WithFields(logrus.Fields{
			"function": "ChannelProbe.Channels",
			"toc":      packet[0],
			"stereo":   stereo,
			"error":    err.Error(),
		}).Debug("Decoder probe failed, using TOC stereo flag")
	} else {
		logrus.WithFields(logrus.Fields{
			"function":  "ChannelProbe.Channels",
			"bandwidth": bandwidth.String(),
			"stereo":    stereo,
		}).Debug("Probed opus channel layout")
	}

	if stereo {
		return 2
	}
	return 1
}

func (p *ChannelProbe) decode(packet []byte) (bandwidth opus.Bandwidth, stereo bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("opus decoder panic: %v", r)
		}
	}()
	return p.decoder.Decode(packet, p.out)
}

package av

import (
	"fmt"
	"strings"

	"github.com/opd-ai/rtcingest/av/rtp"
	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"
)

// rtxCodecName is the codec name announcing a retransmission stream.
const rtxCodecName = "rtx"

// CodecInfo is one negotiated payload type.
type CodecInfo struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Channels    uint16
}

// SSRCGroup is an a=ssrc-group line, e.g. FID primary rtx.
type SSRCGroup struct {
	Semantics string
	SSRCs     []uint32
}

// ExtensionInfo maps a header-extension URI to its negotiated id.
type ExtensionInfo struct {
	URI string
	ID  uint8
}

// TrackInfo is the control-plane description of an inbound track as
// negotiated by signaling. It is read once, at admission.
type TrackInfo struct {
	Media      string
	Stream     string
	ClockRate  int
	Codecs     []CodecInfo
	SSRCGroups []SSRCGroup
	SSRCs      []uint32
	Extensions []ExtensionInfo
}

// TrackDescriptor is the validated, immutable description of one track.
type TrackDescriptor struct {
	Media     media.MediaKind
	Stream    media.StreamKind
	Codec     media.CodecKind
	ClockRate uint32
	Channels  int

	SSRC        uint32
	PayloadType uint8

	HasRTX         bool
	RTXSSRC        uint32
	RTXPayloadType uint8

	Extensions rtp.ExtensionIDs
}

// NewTrackDescriptor validates info.
//
// The primary source is the first SSRC of the first group, the second SSRC
// of that group is the retransmission source. Without groups the first two
// plain SSRCs are used the same way. Retransmission is enabled only when a
// codec named "rtx" is negotiated and a second SSRC exists.
//
// Parameters:
//   - info: negotiated track description
//
// Returns:
//   - *TrackDescriptor: validated descriptor
//   - error: ErrInvalidClockRate, ErrInvalidMediaKind, ErrUnsupportedCodec or ErrNoUsableSSRC
func NewTrackDescriptor(info TrackInfo) (*TrackDescriptor, error) {
	if info.ClockRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClockRate, info.ClockRate)
	}
	mk, err := media.ParseMediaKind(info.Media)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMediaKind, err)
	}
	sk, err := media.ParseStreamKind(info.Stream, mk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMediaKind, err)
	}

	td := &TrackDescriptor{
		Media:     mk,
		Stream:    sk,
		ClockRate: uint32(info.ClockRate),
	}
	if err := td.resolveCodecs(info.Codecs); err != nil {
		return nil, err
	}
	td.resolveSSRCs(info)
	if td.SSRC == 0 {
		return nil, ErrNoUsableSSRC
	}
	td.resolveExtensions(info.Extensions)

	logrus.WithFields(logrus.Fields{
		"function":     "NewTrackDescriptor",
		"media":        td.Media.String(),
		"stream":       td.Stream.String(),
		"codec":        td.Codec.String(),
		"ssrc":         td.SSRC,
		"payload_type": td.PayloadType,
		"has_rtx":      td.HasRTX,
		"rtx_ssrc":     td.RTXSSRC,
	}).Info("Track admitted")
	return td, nil
}

func (td *TrackDescriptor) resolveCodecs(codecs []CodecInfo) error {
	var rtxPT uint8
	var hasRTXCodec, found bool

	for _, c := range codecs {
		if strings.EqualFold(c.Name, rtxCodecName) {
			if !hasRTXCodec {
				rtxPT = c.PayloadType
				hasRTXCodec = true
			}
			continue
		}
		if found {
			continue
		}
		kind := codecKind(c.Name)
		if kind == media.CodecKindUnknown || kindMedia(kind) != td.Media {
			logrus.WithFields(logrus.Fields{
				"function":     "TrackDescriptor.resolveCodecs",
				"codec":        c.Name,
				"payload_type": c.PayloadType,
				"media":        td.Media.String(),
			}).Debug("Skipping codec without depacketizer")
			continue
		}
		td.Codec = kind
		td.PayloadType = c.PayloadType
		td.Channels = int(c.Channels)
		found = true
	}

	if !found {
		return fmt.Errorf("%w: no h264 or opus codec for %s", ErrUnsupportedCodec, td.Media)
	}
	td.HasRTX = hasRTXCodec
	td.RTXPayloadType = rtxPT
	return nil
}

func (td *TrackDescriptor) resolveSSRCs(info TrackInfo) {
	var candidates []uint32
	if len(info.SSRCGroups) > 0 {
		candidates = info.SSRCGroups[0].SSRCs
	} else {
		candidates = info.SSRCs
	}
	if len(candidates) > 0 {
		td.SSRC = candidates[0]
	}

	if td.HasRTX && len(candidates) > 1 && candidates[1] != 0 && candidates[1] != td.SSRC {
		td.RTXSSRC = candidates[1]
		return
	}
	if td.HasRTX {
		logrus.WithFields(logrus.Fields{
			"function": "TrackDescriptor.resolveSSRCs",
			"ssrc":     td.SSRC,
		}).Warn("rtx negotiated without a retransmission ssrc, disabling")
	}
	td.HasRTX = false
	td.RTXPayloadType = 0
}

func (td *TrackDescriptor) resolveExtensions(exts []ExtensionInfo) {
	for _, e := range exts {
		switch e.URI {
		case sdp.SDESMidURI:
			td.Extensions.MID = e.ID
		case sdp.SDESRTPStreamIDURI:
			td.Extensions.RID = e.ID
		case sdp.ABSSendTimeURI:
			td.Extensions.AbsSendTime = e.ID
		}
	}
}

// OwnsSSRC reports whether ssrc is the primary or retransmission source.
func (td *TrackDescriptor) OwnsSSRC(ssrc uint32) bool {
	return ssrc != 0 && (ssrc == td.SSRC || (td.HasRTX && ssrc == td.RTXSSRC))
}

func codecKind(name string) media.CodecKind {
	switch strings.ToLower(name) {
	case "h264":
		return media.CodecKindH264
	case "opus":
		return media.CodecKindOpus
	default:
		return media.CodecKindUnknown
	}
}

func kindMedia(c media.CodecKind) media.MediaKind {
	switch c {
	case media.CodecKindH264:
		return media.MediaKindVideo
	case media.CodecKindOpus:
		return media.MediaKindAudio
	default:
		return media.MediaKindUnknown
	}
}

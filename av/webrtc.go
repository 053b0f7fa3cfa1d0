package av

import (
	"strings"

	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/webrtc/v3"
)

// DescriptorFromParameters builds a TrackDescriptor from the parameters of a
// negotiated pion receiver, e.g. RTPReceiver.GetParameters().
//
// rtxSSRC may be zero when the sender does not use retransmission.
func DescriptorFromParameters(kind webrtc.RTPCodecType, params webrtc.RTPParameters, ssrc, rtxSSRC webrtc.SSRC, stream string) (*TrackDescriptor, error) {
	info := TrackInfo{
		Media:  kind.String(),
		Stream: stream,
	}

	group := SSRCGroup{Semantics: "FID", SSRCs: []uint32{uint32(ssrc)}}
	if rtxSSRC != 0 {
		group.SSRCs = append(group.SSRCs, uint32(rtxSSRC))
	}
	info.SSRCGroups = []SSRCGroup{group}

	for _, c := range params.Codecs {
		name := codecName(c.MimeType)
		if info.ClockRate == 0 && !strings.EqualFold(name, rtxCodecName) && codecKind(name) != media.CodecKindUnknown {
			info.ClockRate = int(c.ClockRate)
		}
		info.Codecs = append(info.Codecs, CodecInfo{
			PayloadType: uint8(c.PayloadType),
			Name:        name,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
		})
	}
	for _, e := range params.HeaderExtensions {
		if e.ID <= 0 || e.ID > 255 {
			continue
		}
		info.Extensions = append(info.Extensions, ExtensionInfo{URI: e.URI, ID: uint8(e.ID)})
	}
	return NewTrackDescriptor(info)
}

// codecName returns the subtype of a MIME type such as "video/H264".
func codecName(mimeType string) string {
	if i := strings.LastIndexByte(mimeType, '/'); i >= 0 {
		return mimeType[i+1:]
	}
	return mimeType
}

package av

import (
	"testing"

	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videoInfo() TrackInfo {
	return TrackInfo{
		Media:     "video",
		ClockRate: 90000,
		Codecs: []CodecInfo{
			{PayloadType: testPT, Name: "H264", ClockRate: 90000},
			{PayloadType: testRTXPT, Name: "rtx", ClockRate: 90000},
		},
		SSRCGroups: []SSRCGroup{{Semantics: "FID", SSRCs: []uint32{testSSRC, testRTXSSRC}}},
	}
}

func TestNewTrackDescriptor(t *testing.T) {
	td, err := NewTrackDescriptor(videoInfo())
	require.NoError(t, err)

	assert.Equal(t, media.MediaKindVideo, td.Media)
	assert.Equal(t, media.StreamKindCamera, td.Stream)
	assert.Equal(t, media.CodecKindH264, td.Codec)
	assert.Equal(t, uint32(90000), td.ClockRate)
	assert.Equal(t, uint32(testSSRC), td.SSRC)
	assert.Equal(t, uint8(testPT), td.PayloadType)
	assert.True(t, td.HasRTX)
	assert.Equal(t, uint32(testRTXSSRC), td.RTXSSRC)
	assert.Equal(t, uint8(testRTXPT), td.RTXPayloadType)
	assert.True(t, td.OwnsSSRC(testSSRC))
	assert.True(t, td.OwnsSSRC(testRTXSSRC))
	assert.False(t, td.OwnsSSRC(0x9999))
}

func TestNewTrackDescriptorPlainSSRCs(t *testing.T) {
	info := TrackInfo{
		Media:     "audio",
		ClockRate: 48000,
		Codecs:    []CodecInfo{{PayloadType: testOpusPT, Name: "opus", ClockRate: 48000, Channels: 2}},
		SSRCs:     []uint32{testOpusSSRC},
	}

	td, err := NewTrackDescriptor(info)
	require.NoError(t, err)

	assert.Equal(t, media.CodecKindOpus, td.Codec)
	assert.Equal(t, media.StreamKindMicrophone, td.Stream)
	assert.Equal(t, 2, td.Channels)
	assert.Equal(t, uint32(testOpusSSRC), td.SSRC)
	assert.False(t, td.HasRTX)
}

func TestNewTrackDescriptorErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TrackInfo)
		wantErr error
	}{
		{
			name:    "zero clock rate",
			mutate:  func(i *TrackInfo) { i.ClockRate = 0 },
			wantErr: ErrInvalidClockRate,
		},
		{
			name:    "negative clock rate",
			mutate:  func(i *TrackInfo) { i.ClockRate = -90000 },
			wantErr: ErrInvalidClockRate,
		},
		{
			name: "no ssrc",
			mutate: func(i *TrackInfo) {
				i.SSRCGroups = nil
				i.SSRCs = nil
			},
			wantErr: ErrNoUsableSSRC,
		},
		{
			name:    "zero ssrc",
			mutate:  func(i *TrackInfo) { i.SSRCGroups = []SSRCGroup{{Semantics: "FID", SSRCs: []uint32{0}}} },
			wantErr: ErrNoUsableSSRC,
		},
		{
			name:    "bad media kind",
			mutate:  func(i *TrackInfo) { i.Media = "data" },
			wantErr: ErrInvalidMediaKind,
		},
		{
			name:    "bad stream kind",
			mutate:  func(i *TrackInfo) { i.Stream = "hologram" },
			wantErr: ErrInvalidMediaKind,
		},
		{
			name:    "vp8 only",
			mutate:  func(i *TrackInfo) { i.Codecs = []CodecInfo{{PayloadType: 96, Name: "VP8", ClockRate: 90000}} },
			wantErr: ErrUnsupportedCodec,
		},
		{
			name:    "audio codec on video track",
			mutate:  func(i *TrackInfo) { i.Codecs = []CodecInfo{{PayloadType: 111, Name: "opus", ClockRate: 48000}} },
			wantErr: ErrUnsupportedCodec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := videoInfo()
			tt.mutate(&info)
			td, err := NewTrackDescriptor(info)
			assert.Nil(t, td)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewTrackDescriptorSkipsUnsupportedCodecs(t *testing.T) {
	info := videoInfo()
	info.Codecs = append([]CodecInfo{{PayloadType: 96, Name: "VP8", ClockRate: 90000}}, info.Codecs...)

	td, err := NewTrackDescriptor(info)
	require.NoError(t, err)
	assert.Equal(t, media.CodecKindH264, td.Codec)
	assert.Equal(t, uint8(testPT), td.PayloadType)
}

func TestNewTrackDescriptorRTXWithoutSecondSSRC(t *testing.T) {
	info := videoInfo()
	info.SSRCGroups = []SSRCGroup{{Semantics: "FID", SSRCs: []uint32{testSSRC}}}

	td, err := NewTrackDescriptor(info)
	require.NoError(t, err)
	assert.False(t, td.HasRTX)
	assert.Zero(t, td.RTXSSRC)
	assert.Zero(t, td.RTXPayloadType)
	assert.False(t, td.OwnsSSRC(testRTXSSRC))
}

func TestNewTrackDescriptorRTXSameSSRC(t *testing.T) {
	info := videoInfo()
	info.SSRCGroups = []SSRCGroup{{Semantics: "FID", SSRCs: []uint32{testSSRC, testSSRC}}}

	td, err := NewTrackDescriptor(info)
	require.NoError(t, err)
	assert.False(t, td.HasRTX)
}

func TestNewTrackDescriptorExtensions(t *testing.T) {
	info := videoInfo()
	info.Extensions = []ExtensionInfo{
		{URI: sdp.SDESMidURI, ID: 4},
		{URI: sdp.SDESRTPStreamIDURI, ID: 10},
		{URI: sdp.ABSSendTimeURI, ID: 2},
		{URI: "urn:ietf:params:rtp-hdrext:toffset", ID: 14},
	}

	td, err := NewTrackDescriptor(info)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), td.Extensions.MID)
	assert.Equal(t, uint8(10), td.Extensions.RID)
	assert.Equal(t, uint8(2), td.Extensions.AbsSendTime)
}

func TestDescriptorFromParameters(t *testing.T) {
	params := webrtc.RTPParameters{
		HeaderExtensions: []webrtc.RTPHeaderExtensionParameter{
			{URI: sdp.SDESMidURI, ID: 3},
			{URI: "bogus", ID: 300},
		},
		Codecs: []webrtc.RTPCodecParameters{
			{
				RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
				PayloadType:        96,
			},
			{
				RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
				PayloadType:        testPT,
			},
			{
				RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/rtx", ClockRate: 90000},
				PayloadType:        testRTXPT,
			},
		},
	}

	td, err := DescriptorFromParameters(webrtc.RTPCodecTypeVideo, params, testSSRC, testRTXSSRC, "screen")
	require.NoError(t, err)

	assert.Equal(t, media.StreamKindScreen, td.Stream)
	assert.Equal(t, media.CodecKindH264, td.Codec)
	assert.Equal(t, uint32(90000), td.ClockRate)
	assert.Equal(t, uint8(testPT), td.PayloadType)
	assert.True(t, td.HasRTX)
	assert.Equal(t, uint32(testRTXSSRC), td.RTXSSRC)
	assert.Equal(t, uint8(3), td.Extensions.MID)
}

func TestDescriptorFromParametersWithoutCodec(t *testing.T) {
	params := webrtc.RTPParameters{
		Codecs: []webrtc.RTPCodecParameters{{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		}},
	}

	_, err := DescriptorFromParameters(webrtc.RTPCodecTypeVideo, params, testSSRC, 0, "")
	assert.ErrorIs(t, err, ErrInvalidClockRate)
}

func TestCodecName(t *testing.T) {
	assert.Equal(t, "H264", codecName("video/H264"))
	assert.Equal(t, "opus", codecName("audio/opus"))
	assert.Equal(t, "rtx", codecName("rtx"))
}

package rtcingest

import (
	"time"

	"github.com/opd-ai/rtcingest/av"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const (
	videoSSRC = 0x1000
	videoPT   = 102
	rtxSSRC   = 0x2000
	rtxPT     = 103
	audioSSRC = 0x3000
	audioPT   = 111
)

var (
	testSPS = []byte{0x67, 0x42, 0xC0, 0x1F, 0x8C, 0x8D, 0x40, 0x50, 0x1E, 0xD0}
	testPPS = []byte{0x68, 0xCE, 0x3C, 0x80}
)

// MockTimeProvider returns a manually advanced clock.
type MockTimeProvider struct {
	currentTime time.Time
}

func (m *MockTimeProvider) Now() time.Time { return m.currentTime }

func (m *MockTimeProvider) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func (m *MockTimeProvider) Advance(d time.Duration) { m.currentTime = m.currentTime.Add(d) }

func videoInfo() av.TrackInfo {
	return av.TrackInfo{
		Media:     "video",
		Stream:    "camera",
		ClockRate: 90000,
		Codecs: []av.CodecInfo{
			{PayloadType: videoPT, Name: "H264", ClockRate: 90000},
			{PayloadType: rtxPT, Name: "rtx", ClockRate: 90000},
		},
		SSRCGroups: []av.SSRCGroup{{Semantics: "FID", SSRCs: []uint32{videoSSRC, rtxSSRC}}},
	}
}

func audioInfo() av.TrackInfo {
	return av.TrackInfo{
		Media:     "audio",
		ClockRate: 48000,
		Codecs:    []av.CodecInfo{{PayloadType: audioPT, Name: "opus", ClockRate: 48000, Channels: 2}},
		SSRCs:     []uint32{audioSSRC},
	}
}

// keyframePackets packetizes SPS, PPS and an IDR slice as a browser would.
func keyframePackets(seq uint16, ts uint32) []*rtp.Packet {
	idr := make([]byte, 3000)
	idr[0] = 0x65
	for i := 1; i < len(idr); i++ {
		idr[i] = byte(i)
	}

	var annexB []byte
	for _, n := range [][]byte{testSPS, testPPS, idr} {
		annexB = append(annexB, 0x00, 0x00, 0x00, 0x01)
		annexB = append(annexB, n...)
	}
	payloads := (&codecs.H264Payloader{}).Payload(1200, annexB)

	pkts := make([]*rtp.Packet, 0, len(payloads))
	for i, p := range payloads {
		pkts = append(pkts, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    videoPT,
				SequenceNumber: seq + uint16(i),
				Timestamp:      ts,
				SSRC:           videoSSRC,
			},
			Payload: p,
		})
	}
	return pkts
}

func opusPacket(seq uint16, ts uint32) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    audioPT,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           audioSSRC,
		},
		Payload: []byte{0xFC, 0xFF, 0xFE},
	}
}

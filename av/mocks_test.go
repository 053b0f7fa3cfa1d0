package av

import (
	"errors"
	"time"

	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const (
	testSSRC    = 0x1000
	testPT      = 102
	testRTXSSRC = 0x2000
	testRTXPT   = 103

	testOpusSSRC = 0x3000
	testOpusPT   = 111
)

var (
	testSPS = []byte{0x67, 0x42, 0xC0, 0x1F, 0x8C, 0x8D, 0x40, 0x50, 0x1E, 0xD0}
	testPPS = []byte{0x68, 0xCE, 0x3C, 0x80}

	errTransportDown = errors.New("transport down")
)

// MockTimeProvider returns a manually advanced clock.
type MockTimeProvider struct {
	currentTime time.Time
}

func (m *MockTimeProvider) Now() time.Time { return m.currentTime }

func (m *MockTimeProvider) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func (m *MockTimeProvider) Advance(d time.Duration) { m.currentTime = m.currentTime.Add(d) }

// MockRoom records every packet handed to the room.
type MockRoom struct {
	packets []*media.Packet
	rooms   []string
	users   []string
	kinds   []media.MediaKind
	streams []media.StreamKind
}

func (m *MockRoom) OnPublisherPacket(room, user string, mediaKind media.MediaKind, streamKind media.StreamKind, pkt *media.Packet) {
	m.packets = append(m.packets, pkt)
	m.rooms = append(m.rooms, room)
	m.users = append(m.users, user)
	m.kinds = append(m.kinds, mediaKind)
	m.streams = append(m.streams, streamKind)
}

// MockContainer records packets handed to the container multiplexer.
type MockContainer struct {
	packets []*media.Packet
}

func (m *MockContainer) OnContainerPacket(room, user string, streamKind media.StreamKind, pkt *media.Packet) {
	m.packets = append(m.packets, pkt)
}

// MockTransport records control packets and optionally fails.
type MockTransport struct {
	written []rtcp.Packet
	err     error
}

func (m *MockTransport) WriteRTCP(pkts []rtcp.Packet) error {
	if m.err != nil {
		return m.err
	}
	m.written = append(m.written, pkts...)
	return nil
}

func (m *MockTransport) plis() []*rtcp.PictureLossIndication {
	var out []*rtcp.PictureLossIndication
	for _, p := range m.written {
		if pli, ok := p.(*rtcp.PictureLossIndication); ok {
			out = append(out, pli)
		}
	}
	return out
}

// MockRelay records raw RTP packets passed through before reordering.
type MockRelay struct {
	seqs []uint16
}

func (m *MockRelay) OnRTPPacket(room, user string, mediaKind media.MediaKind, pkt *pionrtp.Packet) {
	m.seqs = append(m.seqs, pkt.SequenceNumber)
}

func videoTrack() *TrackDescriptor {
	return &TrackDescriptor{
		Media:          media.MediaKindVideo,
		Stream:         media.StreamKindCamera,
		Codec:          media.CodecKindH264,
		ClockRate:      90000,
		SSRC:           testSSRC,
		PayloadType:    testPT,
		HasRTX:         true,
		RTXSSRC:        testRTXSSRC,
		RTXPayloadType: testRTXPT,
	}
}

func audioTrack() *TrackDescriptor {
	return &TrackDescriptor{
		Media:       media.MediaKindAudio,
		Stream:      media.StreamKindMicrophone,
		Codec:       media.CodecKindOpus,
		ClockRate:   48000,
		Channels:    2,
		SSRC:        testOpusSSRC,
		PayloadType: testOpusPT,
	}
}

// videoSource packetizes Annex-B frames the way a browser sender would.
type videoSource struct {
	seq uint16
}

func (s *videoSource) frame(ts uint32, nalus ...[]byte) []*pionrtp.Packet {
	var annexB []byte
	for _, n := range nalus {
		annexB = append(annexB, 0x00, 0x00, 0x00, 0x01)
		annexB = append(annexB, n...)
	}
	payloads := (&codecs.H264Payloader{}).Payload(1200, annexB)

	pkts := make([]*pionrtp.Packet, 0, len(payloads))
	for i, p := range payloads {
		pkts = append(pkts, &pionrtp.Packet{
			Header: pionrtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    testPT,
				SequenceNumber: s.seq,
				Timestamp:      ts,
				SSRC:           testSSRC,
			},
			Payload: p,
		})
		s.seq++
	}
	return pkts
}

func (s *videoSource) keyframe(ts uint32) []*pionrtp.Packet {
	return s.frame(ts, testSPS, testPPS, idrNALU(3000))
}

func idrNALU(size int) []byte {
	n := make([]byte, size)
	n[0] = 0x65
	for i := 1; i < size; i++ {
		n[i] = byte(i)
	}
	return n
}

func sliceNALU(size int) []byte {
	n := make([]byte, size)
	n[0] = 0x41
	for i := 1; i < size; i++ {
		n[i] = byte(i * 7)
	}
	return n
}

func rtpPacket(ssrc uint32, pt uint8, seq uint16, ts uint32, payload []byte) *pionrtp.Packet {
	return &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    pt,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
}

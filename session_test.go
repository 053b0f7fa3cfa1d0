package rtcingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/rtcingest/av"
	"github.com/opd-ai/rtcingest/media"
	simtest "github.com/opd-ai/rtcingest/testing"
	"github.com/opd-ai/rtcingest/transport"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoute = media.Route{Room: "live", User: "alice"}

type sessionHarness struct {
	tp        *MockTimeProvider
	room      *simtest.RecordingRoom
	container *simtest.RecordingContainer
	control   *simtest.SimulatedControlTransport
	session   *Session
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		tp:        &MockTimeProvider{currentTime: time.Unix(1700000000, 0)},
		room:      simtest.NewRecordingRoom(),
		container: simtest.NewRecordingContainer(),
		control:   simtest.NewSimulatedControlTransport(),
	}

	options := NewOptions()
	options.TimeProvider = h.tp
	options.Room = h.room
	options.Container = h.container
	options.Transport = h.control

	s, err := New(options)
	require.NoError(t, err)
	h.session = s
	t.Cleanup(s.Close)
	return h
}

func (h *sessionHarness) sendRaw(t *testing.T, pkts ...*rtp.Packet) {
	t.Helper()
	for _, pkt := range pkts {
		raw, err := pkt.Marshal()
		require.NoError(t, err)
		require.NoError(t, h.session.HandlePacket(raw, h.tp.Now()))
	}
}

func (h *sessionHarness) tick() {
	h.tp.Advance(av.DefaultConfig().TickInterval)
	h.session.Iterate()
}

func TestNewDefaults(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.IsRunning())
	assert.Equal(t, 50*time.Millisecond, s.IterationInterval())
	assert.Zero(t, s.Stats().Tracks)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	options := NewOptions()
	options.Config.KeyframeInterval = 0

	_, err := New(options)
	assert.ErrorIs(t, err, av.ErrInvalidConfig)
}

func TestIterationIntervalFollowsShortTicks(t *testing.T) {
	options := NewOptions()
	options.Config.TickInterval = 20 * time.Millisecond

	s, err := New(options)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 20*time.Millisecond, s.IterationInterval())
}

func TestAddTrackRoutesPrimaryAndRTX(t *testing.T) {
	h := newSessionHarness(t)

	pub, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)

	byPrimary, ok := h.session.Publisher(videoSSRC)
	require.True(t, ok)
	byRTX, ok := h.session.Publisher(rtxSSRC)
	require.True(t, ok)
	assert.Same(t, pub, byPrimary)
	assert.Same(t, pub, byRTX)
	assert.Equal(t, testRoute, pub.Route())
}

func TestAddTrackErrors(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)

	_, err = h.session.AddTrackInfo(testRoute, videoInfo())
	assert.ErrorIs(t, err, ErrDuplicateSSRC)

	clash := videoInfo()
	clash.SSRCGroups = []av.SSRCGroup{{Semantics: "FID", SSRCs: []uint32{0x5000, rtxSSRC}}}
	_, err = h.session.AddTrackInfo(testRoute, clash)
	assert.ErrorIs(t, err, ErrDuplicateSSRC)

	bad := audioInfo()
	bad.ClockRate = 0
	_, err = h.session.AddTrackInfo(testRoute, bad)
	assert.ErrorIs(t, err, av.ErrInvalidClockRate)

	noSSRC := audioInfo()
	noSSRC.SSRCs = nil
	_, err = h.session.AddTrackInfo(testRoute, noSSRC)
	assert.ErrorIs(t, err, av.ErrNoUsableSSRC)

	_, err = h.session.AddTrack(testRoute, nil)
	assert.ErrorIs(t, err, av.ErrNoUsableSSRC)
}

func TestHandlePacketDeliversKeyframe(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)

	h.sendRaw(t, keyframePackets(100, 90000)...)

	log := h.room.GetDeliveryLog()
	require.Len(t, log, 2)
	assert.True(t, log[0].Packet.Header)
	assert.True(t, log[1].Packet.KeyFrame)
	assert.Equal(t, int64(1000), log[1].Packet.DTS)
	assert.Equal(t, "live", log[1].Room)
	assert.Equal(t, "alice", log[1].User)

	assert.Len(t, h.container.GetDeliveryLog(), 2)
	assert.Zero(t, h.container.Untagged())

	st := h.session.Stats()
	assert.Equal(t, 1, st.Tracks)
	assert.Equal(t, uint64(4), st.RTPPackets)
	assert.Equal(t, uint64(1), st.Publishers[videoSSRC].Video.KeyFrames)
}

func TestHandlePacketAudio(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, audioInfo())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.sendRaw(t, opusPacket(uint16(10+i), 960*uint32(i+1)))
	}

	audio := h.room.Packets(media.MediaKindAudio)
	require.Len(t, audio, 4)
	assert.True(t, audio[0].Header)
	assert.Equal(t, int64(40), audio[2].DTS)
}

func TestUnknownSSRCIsCountedNotFatal(t *testing.T) {
	h := newSessionHarness(t)

	h.sendRaw(t, opusPacket(1, 960), opusPacket(2, 1920))

	st := h.session.Stats()
	assert.Equal(t, uint64(2), st.UnknownSSRC)
	assert.Empty(t, h.room.GetDeliveryLog())
}

func TestHandlePacketErrors(t *testing.T) {
	h := newSessionHarness(t)

	assert.ErrorIs(t, h.session.HandlePacket([]byte("hello"), time.Time{}), transport.ErrNotMedia)
	assert.Error(t, h.session.HandleRTP([]byte{0x80, 0x66}, time.Time{}))
	assert.Error(t, h.session.HandleRTCP([]byte{0x81, 0xC8, 0x00, 0x06}))
}

func TestSenderReportReachesPublisher(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)
	h.sendRaw(t, keyframePackets(100, 90000)...)

	raw, err := rtcp.Marshal([]rtcp.Packet{
		&rtcp.SenderReport{SSRC: videoSSRC, NTPTime: 0xE000000000000000, RTPTime: 90000, PacketCount: 4},
		&rtcp.SenderReport{SSRC: 0xDEAD},
		&rtcp.ReceiverReport{SSRC: 1},
	})
	require.NoError(t, err)
	require.NoError(t, h.session.HandlePacket(raw, h.tp.Now()))

	st := h.session.Stats()
	assert.Equal(t, uint64(1), st.RTCPPackets)
	assert.Equal(t, uint64(1), st.SenderReports)
	assert.Equal(t, uint32(90000), st.Publishers[videoSSRC].Receive.LastSenderReport.RTPTime)
}

func TestIterateDrivesKeyframeRequests(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)
	_, err = h.session.AddTrackInfo(testRoute, audioInfo())
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		h.tick()
	}

	plis := h.control.PictureLossIndications()
	require.Len(t, plis, 1)
	assert.Equal(t, uint32(videoSSRC), plis[0].MediaSSRC)
	assert.Equal(t, uint32(1), plis[0].SenderSSRC)
}

func TestSetControlTransport(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)

	replacement := simtest.NewSimulatedControlTransport()
	h.session.SetControlTransport(replacement)
	require.NoError(t, h.session.RequestKeyframe(videoSSRC))

	assert.Empty(t, h.control.PictureLossIndications())
	assert.Len(t, replacement.PictureLossIndications(), 1)

	assert.ErrorIs(t, h.session.RequestKeyframe(0xBEEF), ErrTrackNotFound)
}

func TestRemoveTrackByRTXSSRC(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)

	require.NoError(t, h.session.RemoveTrack(rtxSSRC))
	_, ok := h.session.Publisher(videoSSRC)
	assert.False(t, ok)
	_, ok = h.session.Publisher(rtxSSRC)
	assert.False(t, ok)

	assert.ErrorIs(t, h.session.RemoveTrack(videoSSRC), ErrTrackNotFound)

	h.sendRaw(t, keyframePackets(100, 90000)...)
	assert.Empty(t, h.room.GetDeliveryLog())
}

func TestCloseStopsSession(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, videoInfo())
	require.NoError(t, err)

	h.session.Close()
	h.session.Close()

	assert.False(t, h.session.IsRunning())
	raw, err := keyframePackets(1, 0)[0].Marshal()
	require.NoError(t, err)
	assert.ErrorIs(t, h.session.HandlePacket(raw, time.Time{}), ErrSessionClosed)
	assert.ErrorIs(t, h.session.HandleRTCPPackets(nil), ErrSessionClosed)

	_, err = h.session.AddTrackInfo(testRoute, audioInfo())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, h.session.RequestKeyframe(videoSSRC), ErrSessionClosed)
	assert.Zero(t, h.session.Stats().Tracks)

	h.tick()
	assert.Empty(t, h.control.PictureLossIndications())
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConcurrentPacketsAndIterate(t *testing.T) {
	h := newSessionHarness(t)
	_, err := h.session.AddTrackInfo(testRoute, audioInfo())
	require.NoError(t, err)

	raws := make([][]byte, 50)
	for i := range raws {
		raw, err := opusPacket(uint16(i), 960*uint32(i+1)).Marshal()
		require.NoError(t, err)
		raws[i] = raw
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, raw := range raws {
			_ = h.session.HandlePacket(raw, time.Time{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			h.session.Iterate()
			_ = h.session.Stats()
		}
	}()
	wg.Wait()

	assert.Equal(t, uint64(50), h.session.Stats().RTPPackets)
}

package transport

import (
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// MockHandler records what a transport dispatched.
type MockHandler struct {
	mu       sync.Mutex
	rtp      []*rtp.Packet
	arrivals []time.Time
	rtcp     [][]rtcp.Packet
	received chan struct{}
	err      error
}

func newMockHandler() *MockHandler {
	return &MockHandler{received: make(chan struct{}, 64)}
}

func (m *MockHandler) HandleRTPPacket(pkt *rtp.Packet, arrival time.Time) error {
	m.mu.Lock()
	m.rtp = append(m.rtp, pkt)
	m.arrivals = append(m.arrivals, arrival)
	m.mu.Unlock()
	m.received <- struct{}{}
	return m.err
}

func (m *MockHandler) HandleRTCPPackets(pkts []rtcp.Packet) error {
	m.mu.Lock()
	m.rtcp = append(m.rtcp, pkts)
	m.mu.Unlock()
	m.received <- struct{}{}
	return m.err
}

func (m *MockHandler) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rtp), len(m.rtcp)
}

// queueReader replays raw packets to an interceptor reader.
type queueReader struct {
	packets [][]byte
}

func (q *queueReader) Read(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
	if len(q.packets) == 0 {
		return 0, a, errQueueEmpty
	}
	n := copy(b, q.packets[0])
	q.packets = q.packets[1:]
	return n, a, nil
}

// recordingWriter captures what an interceptor chain writes.
type recordingWriter struct {
	written []rtcp.Packet
}

func (w *recordingWriter) Write(pkts []rtcp.Packet, _ interceptor.Attributes) (int, error) {
	w.written = append(w.written, pkts...)
	return len(pkts), nil
}

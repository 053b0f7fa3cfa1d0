package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/rtcingest/limits"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// UDPTransport receives plain RTP and RTCP on one UDP socket, as sent by
// ffmpeg or GStreamer with rtcp-mux, and sends control packets back to the
// last peer it heard from. It satisfies interfaces.ControlTransport.
type UDPTransport struct {
	conn    net.PacketConn
	handler Handler
	clock   func() time.Time

	mu   sync.RWMutex
	peer net.Addr

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUDPTransport creates a UDP listener and starts reading.
//
// Parameters:
//   - listenAddr: local address, e.g. "127.0.0.1:5004"
//   - handler: receiver of parsed packets
//
// Returns:
//   - *UDPTransport: running transport
//   - error: listen error
func NewUDPTransport(listenAddr string, handler Handler) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}
	return newUDPTransport(conn, handler, time.Now), nil
}

func newUDPTransport(conn net.PacketConn, handler Handler, clock func() time.Time) *UDPTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		conn:    conn,
		handler: handler,
		clock:   clock,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewUDPTransport",
		"local":    conn.LocalAddr().String(),
	}).Info("UDP media transport listening")

	go t.processPackets()
	return t
}

// WriteRTCP sends pkts to the last peer that sent media.
func (t *UDPTransport) WriteRTCP(pkts []rtcp.Packet) error {
	t.mu.RLock()
	peer := t.peer
	t.mu.RUnlock()
	if peer == nil {
		return ErrNoPeer
	}

	raw, err := rtcp.Marshal(pkts)
	if err != nil {
		return fmt.Errorf("failed to marshal rtcp: %w", err)
	}
	if _, err := t.conn.WriteTo(raw, peer); err != nil {
		return fmt.Errorf("failed to send rtcp to %s: %w", peer, err)
	}
	return nil
}

// Peer returns the last remote address media arrived from, or nil.
func (t *UDPTransport) Peer() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peer
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close stops reading and closes the socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, limits.MaxRTPPacket+1)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingPacket(buffer)
		}
	}
}

// processIncomingPacket reads, classifies and dispatches one datagram.
// Handler calls happen on the reading goroutine to keep arrival order.
func (t *UDPTransport) processIncomingPacket(buffer []byte) {
	data, addr, err := t.readPacketData(buffer)
	if err != nil {
		return
	}
	arrival := t.clock()

	if err := t.dispatch(data, arrival); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"remote":   addr.String(),
			"size":     len(data),
			"error":    err.Error(),
		}).Debug("Dropping datagram")
		return
	}

	t.mu.Lock()
	if t.peer == nil || t.peer.String() != addr.String() {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"remote":   addr.String(),
		}).Info("Media peer changed")
		t.peer = addr
	}
	t.mu.Unlock()
}

func (t *UDPTransport) dispatch(data []byte, arrival time.Time) error {
	switch Classify(data) {
	case PacketTypeRTP:
		pkt, err := ParseRTP(data)
		if err != nil {
			return err
		}
		return t.handler.HandleRTPPacket(pkt, arrival)
	case PacketTypeRTCP:
		pkts, err := ParseRTCP(data)
		if err != nil {
			return err
		}
		return t.handler.HandleRTCPPackets(pkts)
	default:
		return ErrNotMedia
	}
}

// readPacketData reads one datagram with a short deadline so Close is noticed.
func (t *UDPTransport) readPacketData(buffer []byte) ([]byte, net.Addr, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		return nil, nil, t.handleReadError(err)
	}
	if n > limits.MaxRTPPacket {
		return nil, nil, limits.ErrPacketTooLarge
	}
	return buffer[:n], addr, nil
}

func (t *UDPTransport) handleReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}
	if t.ctx.Err() == nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.readPacketData",
			"error":    err.Error(),
		}).Warn("UDP read failed")
	}
	return err
}

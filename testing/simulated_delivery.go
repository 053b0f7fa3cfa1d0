package testing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/rtcingest/media"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// ErrTransportClosed is returned by a SimulatedControlTransport after Close.
var ErrTransportClosed = errors.New("simulated transport closed")

// DeliveryRecord represents one packet handed to a simulated sink.
type DeliveryRecord struct {
	Room      string
	User      string
	Media     media.MediaKind
	Stream    media.StreamKind
	Packet    *media.Packet
	Timestamp int64
}

// RecordingRoom is an in-memory room that keeps every delivered packet.
type RecordingRoom struct {
	mu          sync.RWMutex
	deliveryLog []DeliveryRecord
}

// NewRecordingRoom creates an empty recording room.
func NewRecordingRoom() *RecordingRoom {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function": "NewRecordingRoom",
	}).Info("Creating recording room for testing")

	return &RecordingRoom{deliveryLog: make([]DeliveryRecord, 0)}
}

// OnPublisherPacket implements interfaces.RoomSink.
func (r *RecordingRoom) OnPublisherPacket(room, user string, mediaKind media.MediaKind, streamKind media.StreamKind, pkt *media.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deliveryLog = append(r.deliveryLog, DeliveryRecord{
		Room:      room,
		User:      user,
		Media:     mediaKind,
		Stream:    streamKind,
		Packet:    pkt,
		Timestamp: time.Now().UnixNano(),
	})

	logrus.WithFields(logrus.Fields{
		"function": "RecordingRoom.OnPublisherPacket",
		"key":      pkt.Key,
		"dts":      pkt.DTS,
		"header":   pkt.Header,
		"total":    len(r.deliveryLog),
	}).Debug("Packet recorded")
}

// GetDeliveryLog returns a copy of the delivery log.
func (r *RecordingRoom) GetDeliveryLog() []DeliveryRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := make([]DeliveryRecord, len(r.deliveryLog))
	copy(log, r.deliveryLog)
	return log
}

// Packets returns the delivered packets of one media kind, in order.
// MediaKindUnknown selects every packet.
func (r *RecordingRoom) Packets(kind media.MediaKind) []*media.Packet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*media.Packet
	for _, rec := range r.deliveryLog {
		if kind == media.MediaKindUnknown || rec.Media == kind {
			out = append(out, rec.Packet)
		}
	}
	return out
}

// ClearDeliveryLog forgets every recorded packet.
func (r *RecordingRoom) ClearDeliveryLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveryLog = make([]DeliveryRecord, 0)
}

// RecordingContainer is an in-memory container sink. It only keeps packets
// carrying a container tag body.
type RecordingContainer struct {
	mu          sync.RWMutex
	deliveryLog []DeliveryRecord
	untagged    int
}

// NewRecordingContainer creates an empty recording container.
func NewRecordingContainer() *RecordingContainer {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function": "NewRecordingContainer",
	}).Info("Creating recording container for testing")

	return &RecordingContainer{deliveryLog: make([]DeliveryRecord, 0)}
}

// OnContainerPacket implements interfaces.ContainerSink.
func (c *RecordingContainer) OnContainerPacket(room, user string, streamKind media.StreamKind, pkt *media.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(pkt.Tag) == 0 {
		c.untagged++
		logrus.WithFields(logrus.Fields{
			"function": "RecordingContainer.OnContainerPacket",
			"key":      pkt.Key,
		}).Error("Container packet without tag body")
		return
	}
	c.deliveryLog = append(c.deliveryLog, DeliveryRecord{
		Room:      room,
		User:      user,
		Media:     pkt.Media,
		Stream:    streamKind,
		Packet:    pkt,
		Timestamp: time.Now().UnixNano(),
	})
}

// GetDeliveryLog returns a copy of the delivery log.
func (c *RecordingContainer) GetDeliveryLog() []DeliveryRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	log := make([]DeliveryRecord, len(c.deliveryLog))
	copy(log, c.deliveryLog)
	return log
}

// Untagged returns how many packets arrived without a tag body.
func (c *RecordingContainer) Untagged() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.untagged
}

// ControlRecord represents one simulated control send.
type ControlRecord struct {
	Packets   []rtcp.Packet
	Size      int
	Timestamp int64
	Success   bool
	Error     error
}

// SimulatedControlTransport records control packets instead of sending them.
// Packets are marshaled so malformed packets fail the same way they would
// on a real transport.
type SimulatedControlTransport struct {
	mu          sync.RWMutex
	deliveryLog []ControlRecord
	failWith    error
	closed      bool
}

// NewSimulatedControlTransport creates a control transport for testing.
func NewSimulatedControlTransport() *SimulatedControlTransport {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedControlTransport",
	}).Info("Creating simulated control transport for testing")

	return &SimulatedControlTransport{deliveryLog: make([]ControlRecord, 0)}
}

// WriteRTCP implements interfaces.ControlTransport with simulation.
func (s *SimulatedControlTransport) WriteRTCP(pkts []rtcp.Packet) error {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")

	s.mu.Lock()
	defer s.mu.Unlock()

	record := ControlRecord{Packets: pkts, Timestamp: time.Now().UnixNano()}
	switch {
	case s.closed:
		record.Error = ErrTransportClosed
	case s.failWith != nil:
		record.Error = s.failWith
	default:
		raw, err := rtcp.Marshal(pkts)
		if err != nil {
			record.Error = fmt.Errorf("failed to marshal control packets: %w", err)
		} else {
			record.Size = len(raw)
			record.Success = true
		}
	}
	s.deliveryLog = append(s.deliveryLog, record)

	if record.Error != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SimulatedControlTransport.WriteRTCP",
			"packets":  len(pkts),
			"error":    record.Error.Error(),
		}).Error("Simulated control send failed")
		return record.Error
	}

	logrus.WithFields(logrus.Fields{
		"function":         "SimulatedControlTransport.WriteRTCP",
		"packets":          len(pkts),
		"size":             record.Size,
		"total_deliveries": len(s.deliveryLog),
	}).Info("Control send simulated successfully")
	return nil
}

// FailWith makes subsequent sends fail with err. A nil err restores success.
func (s *SimulatedControlTransport) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Close makes subsequent sends fail with ErrTransportClosed.
func (s *SimulatedControlTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetDeliveryLog returns a copy of the send log.
func (s *SimulatedControlTransport) GetDeliveryLog() []ControlRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := make([]ControlRecord, len(s.deliveryLog))
	copy(log, s.deliveryLog)
	return log
}

// PictureLossIndications returns every successfully sent PLI, in order.
func (s *SimulatedControlTransport) PictureLossIndications() []*rtcp.PictureLossIndication {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*rtcp.PictureLossIndication
	for _, rec := range s.deliveryLog {
		if !rec.Success {
			continue
		}
		for _, p := range rec.Packets {
			if pli, ok := p.(*rtcp.PictureLossIndication); ok {
				out = append(out, pli)
			}
		}
	}
	return out
}

// IsSimulation reports that this transport never reaches a network.
func (s *SimulatedControlTransport) IsSimulation() bool {
	return true
}

// GetStats returns statistics about the simulation.
func (s *SimulatedControlTransport) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	successCount := 0
	failedCount := 0
	for _, record := range s.deliveryLog {
		if record.Success {
			successCount++
		} else {
			failedCount++
		}
	}

	return map[string]interface{}{
		"total_deliveries":      len(s.deliveryLog),
		"successful_deliveries": successCount,
		"failed_deliveries":     failedCount,
		"is_simulation":         true,
		"closed":                s.closed,
	}
}

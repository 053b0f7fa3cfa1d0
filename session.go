package rtcingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/rtcingest/av"
	"github.com/opd-ai/rtcingest/interfaces"
	"github.com/opd-ai/rtcingest/media"
	"github.com/opd-ai/rtcingest/reactor"
	"github.com/opd-ai/rtcingest/transport"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// defaultIterationInterval is how often Iterate should be called.
const defaultIterationInterval = 50 * time.Millisecond

// Options contains the configuration of a Session.
type Options struct {
	// Config is applied to every publisher.
	Config av.Config
	// TimeProvider drives publisher timers; RealTimeProvider when nil.
	TimeProvider reactor.TimeProvider

	Room      interfaces.RoomSink
	Container interfaces.ContainerSink
	// Transport carries keyframe requests. It can be replaced later with
	// SetControlTransport.
	Transport interfaces.ControlTransport
	Relay     interfaces.RTPRelay
}

// NewOptions creates default options. Collaborators left nil become no-ops.
func NewOptions() *Options {
	return &Options{
		Config:       av.DefaultConfig(),
		TimeProvider: reactor.RealTimeProvider{},
	}
}

// SessionStats summarizes routing counters and every publisher.
type SessionStats struct {
	Tracks        int
	RTPPackets    uint64
	RTCPPackets   uint64
	UnknownSSRC   uint64
	Publishers    map[uint32]av.Stats
	SenderReports uint64
}

// Session routes the RTP and RTCP of one peer connection to the publishers
// of its tracks.
type Session struct {
	options *Options
	loop    *reactor.Loop

	mu         sync.Mutex
	publishers map[uint32]*av.Publisher
	routes     map[uint32]*av.Publisher
	unknown    map[uint32]struct{}
	running    bool

	rtpPackets    uint64
	rtcpPackets   uint64
	unknownSSRC   uint64
	senderReports uint64

	transportMu sync.RWMutex
	transport   interfaces.ControlTransport
}

var _ transport.Handler = (*Session)(nil)

// New creates a session.
//
// Parameters:
//   - options: session configuration, NewOptions() when nil
//
// Returns:
//   - *Session: running session without tracks
//   - error: av.ErrInvalidConfig
func New(options *Options) (*Session, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		options:    options,
		loop:       reactor.NewLoop(options.TimeProvider),
		publishers: make(map[uint32]*av.Publisher),
		routes:     make(map[uint32]*av.Publisher),
		unknown:    make(map[uint32]struct{}),
		running:    true,
		transport:  options.Transport,
	}

	logrus.WithFields(logrus.Fields{
		"function":          "New",
		"tick_interval":     options.Config.TickInterval.String(),
		"keyframe_interval": options.Config.KeyframeInterval,
		"jitter_depth":      options.Config.JitterDepth,
	}).Info("Session created")
	return s, nil
}

// SetControlTransport replaces the transport keyframe requests are sent on,
// for every current and future track.
func (s *Session) SetControlTransport(ct interfaces.ControlTransport) {
	s.transportMu.Lock()
	s.transport = ct
	s.transportMu.Unlock()
}

// WriteRTCP sends pkts on the current control transport.
func (s *Session) WriteRTCP(pkts []rtcp.Packet) error {
	s.transportMu.RLock()
	ct := s.transport
	s.transportMu.RUnlock()
	if ct == nil {
		return nil
	}
	return ct.WriteRTCP(pkts)
}

// AddTrack starts a publisher for track.
//
// Parameters:
//   - route: room and user the track is published to
//   - track: validated descriptor
//
// Returns:
//   - *av.Publisher: the running publisher
//   - error: ErrSessionClosed, ErrDuplicateSSRC or a publisher construction error
func (s *Session) AddTrack(route media.Route, track *av.TrackDescriptor) (*av.Publisher, error) {
	if track == nil {
		return nil, av.ErrNoUsableSSRC
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSessionClosed
	}
	if _, ok := s.routes[track.SSRC]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateSSRC, track.SSRC)
	}
	if track.HasRTX {
		if _, ok := s.routes[track.RTXSSRC]; ok {
			return nil, fmt.Errorf("%w: rtx %d", ErrDuplicateSSRC, track.RTXSSRC)
		}
	}

	pub, err := av.NewPublisher(s.loop, track, route, s.options.Config, interfaces.SinkConfig{
		Room:      s.options.Room,
		Container: s.options.Container,
		Transport: s,
		Relay:     s.options.Relay,
	})
	if err != nil {
		return nil, err
	}

	s.publishers[track.SSRC] = pub
	s.routes[track.SSRC] = pub
	if track.HasRTX {
		s.routes[track.RTXSSRC] = pub
	}
	delete(s.unknown, track.SSRC)
	delete(s.unknown, track.RTXSSRC)
	return pub, nil
}

// AddTrackInfo validates info and starts a publisher for it.
func (s *Session) AddTrackInfo(route media.Route, info av.TrackInfo) (*av.Publisher, error) {
	track, err := av.NewTrackDescriptor(info)
	if err != nil {
		return nil, err
	}
	return s.AddTrack(route, track)
}

// RemoveTrack closes the publisher owning ssrc, its primary or
// retransmission source.
func (s *Session) RemoveTrack(ssrc uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.routes[ssrc]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, ssrc)
	}
	s.removeLocked(pub)
	return nil
}

func (s *Session) removeLocked(pub *av.Publisher) {
	track := pub.Track()
	pub.Close()
	delete(s.publishers, track.SSRC)
	delete(s.routes, track.SSRC)
	if track.HasRTX {
		delete(s.routes, track.RTXSSRC)
	}
}

// Publisher returns the publisher owning ssrc.
func (s *Session) Publisher(ssrc uint32) (*av.Publisher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.routes[ssrc]
	return pub, ok
}

// HandlePacket classifies a datagram of a shared RTP/RTCP socket and routes it.
func (s *Session) HandlePacket(buf []byte, arrival time.Time) error {
	switch transport.Classify(buf) {
	case transport.PacketTypeRTP:
		return s.HandleRTP(buf, arrival)
	case transport.PacketTypeRTCP:
		return s.HandleRTCP(buf)
	default:
		return transport.ErrNotMedia
	}
}

// HandleRTP parses and routes one RTP datagram. It returns an error only for
// unparseable bytes or a closed session.
func (s *Session) HandleRTP(buf []byte, arrival time.Time) error {
	pkt, err := transport.ParseRTP(buf)
	if err != nil {
		return err
	}
	return s.HandleRTPPacket(pkt, arrival)
}

// HandleRTPPacket routes pkt to the publisher owning its SSRC. Packets of
// unknown sources are counted and dropped.
func (s *Session) HandleRTPPacket(pkt *rtp.Packet, arrival time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSessionClosed
	}
	s.rtpPackets++

	pub, ok := s.routes[pkt.SSRC]
	if !ok {
		s.unknownSSRC++
		if _, seen := s.unknown[pkt.SSRC]; !seen {
			s.unknown[pkt.SSRC] = struct{}{}
			logrus.WithFields(logrus.Fields{
				"function":     "Session.HandleRTPPacket",
				"ssrc":         pkt.SSRC,
				"payload_type": pkt.PayloadType,
			}).Error("Dropping rtp of unknown ssrc")
		}
		return nil
	}
	pub.HandleRTP(pkt, arrival)
	return nil
}

// HandleRTCP parses and routes one compound RTCP datagram.
func (s *Session) HandleRTCP(buf []byte) error {
	pkts, err := transport.ParseRTCP(buf)
	if err != nil {
		return err
	}
	return s.HandleRTCPPackets(pkts)
}

// HandleRTCPPackets forwards sender reports to the publisher of their source.
// Other control packets are ignored.
func (s *Session) HandleRTCPPackets(pkts []rtcp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSessionClosed
	}
	s.rtcpPackets++

	for _, p := range pkts {
		sr, ok := p.(*rtcp.SenderReport)
		if !ok {
			continue
		}
		pub, ok := s.publishers[sr.SSRC]
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "Session.HandleRTCPPackets",
				"ssrc":     sr.SSRC,
			}).Debug("Sender report of unknown ssrc")
			continue
		}
		s.senderReports++
		pub.OnSenderReport(sr)
	}
	return nil
}

// RequestKeyframe asks the sender of ssrc for a keyframe now.
func (s *Session) RequestKeyframe(ssrc uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSessionClosed
	}
	pub, ok := s.publishers[ssrc]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, ssrc)
	}
	return pub.RequestKeyframe(ssrc)
}

// Iterate runs queued work and fires due publisher timers. Call it every
// IterationInterval.
func (s *Session) Iterate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.loop.Drain()
	s.loop.Advance()
}

// IterationInterval returns how often Iterate should be called.
func (s *Session) IterationInterval() time.Duration {
	if tick := s.options.Config.TickInterval; tick < defaultIterationInterval {
		return tick
	}
	return defaultIterationInterval
}

// Run calls Iterate every IterationInterval until ctx is done or the
// session is closed.
func (s *Session) Run(ctx context.Context) error {
	ticker := s.loop.TimeProvider().NewTicker(s.IterationInterval())
	defer ticker.Stop()

	for s.IsRunning() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Iterate()
		}
	}
	return nil
}

// IsRunning reports whether the session accepts packets.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats collects routing counters and a snapshot of every publisher.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionStats{
		Tracks:        len(s.publishers),
		RTPPackets:    s.rtpPackets,
		RTCPPackets:   s.rtcpPackets,
		UnknownSSRC:   s.unknownSSRC,
		SenderReports: s.senderReports,
		Publishers:    make(map[uint32]av.Stats, len(s.publishers)),
	}
	for ssrc, pub := range s.publishers {
		st.Publishers[ssrc] = pub.Stats()
	}
	return st
}

// Close tears down every publisher and stops the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	for _, pub := range s.publishers {
		s.removeLocked(pub)
	}
	s.loop.Close()

	logrus.WithFields(logrus.Fields{
		"function":     "Session.Close",
		"rtp_packets":  s.rtpPackets,
		"unknown_ssrc": s.unknownSSRC,
	}).Info("Session closed")
}

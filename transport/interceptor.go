package transport

import (
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/rtcingest/av"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// StreamCallback is told about every remote stream the peer connection binds,
// before its first packet is read.
type StreamCallback func(info *interceptor.StreamInfo)

// PublishInterceptor taps the inbound RTP and RTCP of a pion peer connection
// into a Handler and exposes the connection's RTCP writer as a control
// transport. Register it with PublishInterceptorFactory.
type PublishInterceptor struct {
	interceptor.NoOp

	handler  Handler
	onStream StreamCallback
	clock    func() time.Time

	mu     sync.RWMutex
	writer interceptor.RTCPWriter
}

// NewPublishInterceptor creates an interceptor feeding handler.
func NewPublishInterceptor(handler Handler, onStream StreamCallback) *PublishInterceptor {
	return &PublishInterceptor{
		handler:  handler,
		onStream: onStream,
		clock:    time.Now,
	}
}

// PublishInterceptorFactory hands out one shared PublishInterceptor.
type PublishInterceptorFactory struct {
	Interceptor *PublishInterceptor
}

// NewInterceptor implements interceptor.Factory.
func (f *PublishInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return f.Interceptor, nil
}

// BindRemoteStream wraps reader so every RTP packet of the stream reaches the handler.
func (i *PublishInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	logrus.WithFields(logrus.Fields{
		"function":     "PublishInterceptor.BindRemoteStream",
		"ssrc":         info.SSRC,
		"mime_type":    info.MimeType,
		"payload_type": info.PayloadType,
	}).Info("Remote stream bound")
	if i.onStream != nil {
		i.onStream(info)
	}

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}
		pkt, perr := ParseRTP(b[:n])
		if perr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "PublishInterceptor.Read",
				"ssrc":     info.SSRC,
				"error":    perr.Error(),
			}).Debug("Dropping unparseable rtp")
			return n, attr, nil
		}
		if herr := i.handler.HandleRTPPacket(pkt, i.clock()); herr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "PublishInterceptor.Read",
				"ssrc":     info.SSRC,
				"error":    herr.Error(),
			}).Warn("Handler rejected rtp")
		}
		return n, attr, nil
	})
}

// BindRTCPReader wraps reader so every compound RTCP packet reaches the handler.
func (i *PublishInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}
		if attr == nil {
			attr = make(interceptor.Attributes)
		}
		pkts, perr := attr.GetRTCPPackets(b[:n])
		if perr != nil {
			return n, attr, nil
		}
		if herr := i.handler.HandleRTCPPackets(pkts); herr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "PublishInterceptor.ReadRTCP",
				"error":    herr.Error(),
			}).Warn("Handler rejected rtcp")
		}
		return n, attr, nil
	})
}

// BindRTCPWriter keeps writer for WriteRTCP and returns it unchanged.
func (i *PublishInterceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	i.mu.Lock()
	i.writer = writer
	i.mu.Unlock()
	return writer
}

// WriteRTCP implements interfaces.ControlTransport on the bound writer.
func (i *PublishInterceptor) WriteRTCP(pkts []rtcp.Packet) error {
	i.mu.RLock()
	writer := i.writer
	i.mu.RUnlock()
	if writer == nil {
		return ErrWriterNotBound
	}
	_, err := writer.Write(pkts, make(interceptor.Attributes))
	return err
}

// TrackInfoFromStream describes a bound remote stream for av.NewTrackDescriptor.
// Stream infos carry no retransmission source, so the track has none.
func TrackInfoFromStream(info *interceptor.StreamInfo, stream string) av.TrackInfo {
	mediaKind, codec := "", info.MimeType
	if i := strings.IndexByte(info.MimeType, '/'); i >= 0 {
		mediaKind, codec = info.MimeType[:i], info.MimeType[i+1:]
	}

	ti := av.TrackInfo{
		Media:     mediaKind,
		Stream:    stream,
		ClockRate: int(info.ClockRate),
		Codecs: []av.CodecInfo{{
			PayloadType: info.PayloadType,
			Name:        codec,
			ClockRate:   info.ClockRate,
			Channels:    info.Channels,
		}},
		SSRCs: []uint32{info.SSRC},
	}
	for _, ext := range info.RTPHeaderExtensions {
		if ext.ID <= 0 || ext.ID > 255 {
			continue
		}
		ti.Extensions = append(ti.Extensions, av.ExtensionInfo{URI: ext.URI, ID: uint8(ext.ID)})
	}
	return ti
}

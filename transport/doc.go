// Package transport connects packet sources to the ingest Session.
//
// The secure channel itself (ICE, DTLS, SRTP) belongs to the peer
// connection. This package only taps the decrypted packets it produces:
//
//   - PublishInterceptor plugs into a pion interceptor registry. Every
//     inbound RTP packet of a remote stream and every inbound RTCP packet is
//     parsed and handed to a Handler, and the connection's RTCP writer is
//     exposed as a control transport for keyframe requests.
//   - UDPTransport listens on a plain UDP socket carrying multiplexed RTP and
//     RTCP, for senders such as ffmpeg that push unencrypted media.
//
// Classify separates RTP from RTCP on a shared socket following RFC 5761.
//
// Example:
//
//	session, _ := rtcingest.New(rtcingest.NewOptions())
//	tap := transport.NewPublishInterceptor(session, nil)
//
//	registry := &interceptor.Registry{}
//	registry.Add(&transport.PublishInterceptorFactory{Interceptor: tap})
//	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))
package transport

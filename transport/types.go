package transport

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// Handler consumes classified inbound packets. The root Session implements it.
type Handler interface {
	// HandleRTPPacket takes ownership of pkt.
	HandleRTPPacket(pkt *rtp.Packet, arrival time.Time) error
	// HandleRTCPPackets receives one compound RTCP packet.
	HandleRTCPPackets(pkts []rtcp.Packet) error
}

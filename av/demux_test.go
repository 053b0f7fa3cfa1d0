package av

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDemuxerClassify(t *testing.T) {
	tests := []struct {
		name  string
		ssrc  uint32
		pt    uint8
		rtx   bool
		class PacketClass
	}{
		{"primary", testSSRC, testPT, true, ClassPrimary},
		{"redundancy", testRTXSSRC, testRTXPT, true, ClassRedundancy},
		{"primary ssrc with rtx payload type", testSSRC, testRTXPT, true, ClassUnknown},
		{"rtx ssrc with primary payload type", testRTXSSRC, testPT, true, ClassUnknown},
		{"foreign ssrc", 0x9999, testPT, true, ClassUnknown},
		{"redundancy without rtx", testRTXSSRC, testRTXPT, false, ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := videoTrack()
			if !tt.rtx {
				track.HasRTX = false
			}
			d := NewDemuxer(track)
			assert.Equal(t, tt.class, d.Classify(rtpPacket(tt.ssrc, tt.pt, 1, 0, []byte{0x41})))
		})
	}
}

func TestDemuxerStats(t *testing.T) {
	d := NewDemuxer(videoTrack())
	d.Classify(rtpPacket(testSSRC, testPT, 1, 0, []byte{1}))
	d.Classify(rtpPacket(testSSRC, testPT, 2, 0, []byte{1}))
	d.Classify(rtpPacket(testRTXSSRC, testRTXPT, 1, 0, []byte{0, 1, 1}))
	d.Classify(rtpPacket(0x42, testPT, 1, 0, []byte{1}))

	assert.Equal(t, DemuxStats{Primary: 2, Redundancy: 1, Unknown: 1}, d.Stats())
}

func TestDemuxerAnnotate(t *testing.T) {
	track := videoTrack()
	track.Extensions.MID = 4
	d := NewDemuxer(track)

	arrival := time.Unix(1700000000, 0)
	pkt := rtpPacket(testSSRC, testPT, 7, 0, []byte{1})
	in := d.Annotate(pkt, arrival)

	assert.Same(t, pkt, in.Packet)
	assert.Equal(t, arrival, in.Arrival)
	assert.Equal(t, uint8(4), in.Ext.MID)
}

func TestPacketClassString(t *testing.T) {
	assert.Equal(t, "primary", ClassPrimary.String())
	assert.Equal(t, "redundancy", ClassRedundancy.String())
	assert.Equal(t, "unknown", ClassUnknown.String())
}

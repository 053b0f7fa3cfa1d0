package testing

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// ErrUnknownCaptureFormat indicates a stream that is neither pcap nor pcapng.
var ErrUnknownCaptureFormat = errors.New("unknown capture format")

const pcapngMagic = 0x0A0D0D0A

// Datagram is one UDP payload read from a capture.
type Datagram struct {
	Timestamp time.Time
	Src       *net.UDPAddr
	Dst       *net.UDPAddr
	Payload   []byte
	// Number is the 1-based index of the frame in the capture.
	Number uint64
}

type captureReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// PcapSource reads UDP datagrams from a pcap or pcapng capture, as recorded
// by Wireshark on a WebRTC peer.
type PcapSource struct {
	reader  captureReader
	port    layers.UDPPort
	number  uint64
	skipped uint64
}

// NewPcapSource detects the capture format of r.
//
// Parameters:
//   - r: pcap or pcapng stream
//   - port: keep only datagrams to or from this UDP port; 0 keeps all
//
// Returns:
//   - *PcapSource: datagram reader
//   - error: ErrUnknownCaptureFormat or a reader error
func NewPcapSource(r io.Reader, port uint16) (*PcapSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture magic: %w", err)
	}

	var reader captureReader
	switch binary.LittleEndian.Uint32(magic) {
	case pcapngMagic:
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcapng: %w", err)
		}
		reader = ng
	case 0xA1B2C3D4, 0xD4C3B2A1, 0xA1B23C4D, 0x4D3CB2A1:
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcap: %w", err)
		}
		reader = pr
	default:
		return nil, fmt.Errorf("%w: magic %x", ErrUnknownCaptureFormat, magic)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewPcapSource",
		"link_type": reader.LinkType().String(),
		"port":      port,
	}).Info("Opened capture")

	return &PcapSource{reader: reader, port: layers.UDPPort(port)}, nil
}

// Next returns the next matching UDP datagram, or io.EOF at the end of the
// capture. Frames that are not UDP are skipped.
func (s *PcapSource) Next() (Datagram, error) {
	for {
		data, ci, err := s.reader.ReadPacketData()
		if err != nil {
			return Datagram{}, err
		}
		s.number++

		packet := gopacket.NewPacket(data, s.reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			s.skipped++
			continue
		}
		if s.port != 0 && udp.SrcPort != s.port && udp.DstPort != s.port {
			s.skipped++
			continue
		}

		var srcIP, dstIP net.IP
		if nl := packet.NetworkLayer(); nl != nil {
			src, dst := nl.NetworkFlow().Endpoints()
			srcIP, dstIP = net.IP(src.Raw()), net.IP(dst.Raw())
		}
		return Datagram{
			Timestamp: ci.Timestamp,
			Src:       &net.UDPAddr{IP: srcIP, Port: int(udp.SrcPort)},
			Dst:       &net.UDPAddr{IP: dstIP, Port: int(udp.DstPort)},
			Payload:   append([]byte(nil), udp.Payload...),
			Number:    s.number,
		}, nil
	}
}

// Skipped returns how many frames were not returned by Next.
func (s *PcapSource) Skipped() uint64 {
	return s.skipped
}

// Replay calls fn for every datagram until the capture ends, fn fails or ctx
// is done. With realtime set, datagrams are paced by their capture
// timestamps.
func (s *PcapSource) Replay(ctx context.Context, realtime bool, fn func(Datagram) error) error {
	var previous time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read frame %d: %w", s.number+1, err)
		}

		if realtime && !previous.IsZero() {
			if gap := d.Timestamp.Sub(previous); gap > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(gap):
				}
			}
		}
		previous = d.Timestamp

		if err := fn(d); err != nil {
			return fmt.Errorf("frame %d: %w", d.Number, err)
		}
	}
}

// WriteCapture writes payloads as Ethernet/IPv4/UDP frames to a pcap stream.
// It produces fixtures that NewPcapSource reads back.
func WriteCapture(w io.Writer, src, dst *net.UDPAddr, start time.Time, interval time.Duration, payloads ...[]byte) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	for i, payload := range payloads {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src.IP.To4(),
			DstIP:    dst.IP.To4(),
		}
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(src.Port),
			DstPort: layers.UDPPort(dst.Port),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return fmt.Errorf("failed to prepare udp checksum: %w", err)
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			return fmt.Errorf("failed to serialize frame %d: %w", i+1, err)
		}

		frame := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * interval),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := pw.WritePacket(ci, frame); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i+1, err)
		}
	}
	return nil
}

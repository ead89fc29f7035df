// Package synth generates synthetic Ethernet traffic for replay and load tests.
package synth

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Options shapes the generated traffic.
type Options struct {
	Seed int64
	// Flows is the number of distinct directional flows frames are drawn from.
	Flows int
	// UDPRatio and OtherRatio are the shares of UDP and ICMP frames; the rest is TCP.
	UDPRatio   float64
	OtherRatio float64
	// MaxPayload bounds the random payload size.
	MaxPayload int
	Start      time.Time
	// Gap is the capture time between consecutive frames.
	Gap time.Duration
}

type flow struct {
	src, dst         net.IP
	srcPort, dstPort uint16
	proto            layers.IPProtocol
}

// Generator yields frames of a fixed set of random flows.
type Generator struct {
	rng   *rand.Rand
	flows []flow
	opts  Options
	now   time.Time
	buf   gopacket.SerializeBuffer
}

// New creates a generator. The same options always yield the same frames.
func New(opts Options) (*Generator, error) {
	if opts.Flows <= 0 {
		return nil, fmt.Errorf("flows must be positive, got %d", opts.Flows)
	}
	if opts.UDPRatio < 0 || opts.OtherRatio < 0 || opts.UDPRatio+opts.OtherRatio > 1 {
		return nil, fmt.Errorf("invalid protocol mix udp=%.2f other=%.2f", opts.UDPRatio, opts.OtherRatio)
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = 512
	}
	if opts.Gap <= 0 {
		opts.Gap = time.Millisecond
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}

	g := &Generator{
		rng:  rand.New(rand.NewSource(opts.Seed)),
		opts: opts,
		now:  opts.Start,
		buf:  gopacket.NewSerializeBuffer(),
	}
	g.flows = make([]flow, opts.Flows)
	for i := range g.flows {
		g.flows[i] = g.randomFlow()
	}
	return g, nil
}

func (g *Generator) randomFlow() flow {
	f := flow{
		src:     net.IP{10, byte(g.rng.Intn(256)), byte(g.rng.Intn(256)), byte(1 + g.rng.Intn(254))},
		dst:     net.IP{byte(1 + g.rng.Intn(223)), byte(g.rng.Intn(256)), byte(g.rng.Intn(256)), byte(1 + g.rng.Intn(254))},
		srcPort: uint16(g.rng.Intn(65535-1024) + 1024),
		proto:   layers.IPProtocolTCP,
	}
	switch p := g.rng.Float64(); {
	case p < g.opts.UDPRatio:
		f.proto = layers.IPProtocolUDP
		f.dstPort = []uint16{53, 123, 443, 5353}[g.rng.Intn(4)]
	case p < g.opts.UDPRatio+g.opts.OtherRatio:
		f.proto = layers.IPProtocolICMPv4
		f.srcPort = 0
	default:
		f.dstPort = []uint16{22, 80, 443, 8080}[g.rng.Intn(4)]
	}
	return f
}

// Flows returns the number of distinct flows.
func (g *Generator) Flows() int { return len(g.flows) }

// Next returns the next frame and its capture info. The frame is only valid
// until the following call.
func (g *Generator) Next() ([]byte, gopacket.CaptureInfo, error) {
	f := g.flows[g.rng.Intn(len(g.flows))]

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    f.src,
		DstIP:    f.dst,
		Version:  4,
		TTL:      64,
		Protocol: f.proto,
	}

	payload := make([]byte, g.rng.Intn(g.opts.MaxPayload)+1)
	g.rng.Read(payload)

	var transport gopacket.SerializableLayer
	switch f.proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(f.srcPort),
			DstPort: layers.TCPPort(f.dstPort),
			Seq:     g.rng.Uint32(),
			ACK:     true,
			Window:  14600,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, gopacket.CaptureInfo{}, err
		}
		transport = tcp
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(f.srcPort), DstPort: layers.UDPPort(f.dstPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, gopacket.CaptureInfo{}, err
		}
		transport = udp
	default:
		transport = &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	}

	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(g.buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to serialize layers: %w", err)
	}

	data := g.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: g.now, CaptureLength: len(data), Length: len(data)}
	g.now = g.now.Add(g.opts.Gap)
	return data, ci, nil
}

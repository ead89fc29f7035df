// Package testutil builds wire-format frames for tests.
package testutil

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func ethernet(etherType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: etherType}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

// TCPFrame returns an Ethernet/IPv4/TCP frame.
func TCPFrame(src string, srcPort uint16, dst string, dstPort uint16) []byte {
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), SYN: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload([]byte("hello")))
}

// UDPFrame returns an Ethernet/IPv4/UDP frame.
func UDPFrame(src string, srcPort uint16, dst string, dstPort uint16) []byte {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload([]byte("query")))
}

// TCPFrameWithOptions returns an Ethernet/IPv4/TCP frame whose IP header
// carries options, so the transport header starts past byte 20 of the IP header.
func TCPFrameWithOptions(src string, srcPort uint16, dst string, dstPort uint16) []byte {
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	ip.Options = []layers.IPv4Option{
		{OptionType: 1}, {OptionType: 1}, {OptionType: 1}, {OptionType: 1},
		{OptionType: 1}, {OptionType: 1}, {OptionType: 1}, {OptionType: 1},
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), ACK: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, tcp)
}

// ICMPFrame returns an Ethernet/IPv4/ICMP echo request.
func ICMPFrame(src, dst string) []byte {
	ip := ipv4(src, dst, layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, icmp)
}

// TCPv6Frame returns an Ethernet/IPv6/TCP frame.
func TCPv6Frame(src string, srcPort uint16, dst string, dstPort uint16) []byte {
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), SYN: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ethernet(layers.EthernetTypeIPv6), ip, tcp)
}

// ARPFrame returns an Ethernet/ARP request, which carries no IP header.
func ARPFrame() []byte {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return serialize(ethernet(layers.EthernetTypeARP), arp)
}

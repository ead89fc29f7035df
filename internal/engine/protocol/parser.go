package protocol

import (
	"errors"
	"fmt"
	"time"

	"Go2NetMonitor/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrUnclassifiable is returned for frames that carry no usable IP header or
// are too short for the header being read.
var ErrUnclassifiable = errors.New("unclassifiable frame")

// Classifier decodes raw frames into observations. It reuses its layer
// buffers between calls and is not safe for concurrent use: give every
// ingestion goroutine its own Classifier.
type Classifier struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth   layers.Ethernet
	dot1q layers.Dot1Q
	sll   layers.LinuxSLL
	loop  layers.Loopback
	ip4   layers.IPv4
	ip6   layers.IPv6
	tcp   layers.TCP
	udp   layers.UDP
}

// NewClassifier creates a classifier for frames of the given link type.
func NewClassifier(linkType layers.LinkType) (*Classifier, error) {
	c := &Classifier{decoded: make([]gopacket.LayerType, 0, 4)}

	var first gopacket.LayerType
	switch linkType {
	case layers.LinkTypeEthernet:
		first = layers.LayerTypeEthernet
	case layers.LinkTypeLinuxSLL:
		first = layers.LayerTypeLinuxSLL
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		first = layers.LayerTypeLoopback
	case layers.LinkTypeRaw:
		first = layers.LayerTypeIPv4
	default:
		return nil, fmt.Errorf("unsupported link type: %s", linkType)
	}

	// Transport layers are decoded by hand from the network payload, so the
	// parser stops at the IP header.
	c.parser = gopacket.NewDecodingLayerParser(first, &c.eth, &c.dot1q, &c.sll, &c.loop, &c.ip4, &c.ip6)
	c.parser.IgnoreUnsupported = true
	return c, nil
}

// Classify interprets a single Ethernet frame. It allocates a fresh
// Classifier and is meant for one-off use; hot paths keep a Classifier.
func Classify(frame []byte) (model.Observation, error) {
	c, err := NewClassifier(layers.LinkTypeEthernet)
	if err != nil {
		return model.Observation{}, err
	}
	return c.Classify(frame)
}

// Classify extracts addresses, ports and the protocol tag from a raw frame.
func (c *Classifier) Classify(frame []byte) (model.Observation, error) {
	c.decoded = c.decoded[:0]
	if err := c.parser.DecodeLayers(frame, &c.decoded); err != nil {
		return model.Observation{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}

	obs := model.Observation{Length: len(frame)}
	var (
		proto      layers.IPProtocol
		payload    []byte
		fragmented bool
		network    bool
	)
	for _, lt := range c.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			obs.SrcIP = c.ip4.SrcIP.String()
			obs.DstIP = c.ip4.DstIP.String()
			proto = c.ip4.Protocol
			payload = c.ip4.Payload
			fragmented = c.ip4.FragOffset != 0
			network = true
		case layers.LayerTypeIPv6:
			obs.SrcIP = c.ip6.SrcIP.String()
			obs.DstIP = c.ip6.DstIP.String()
			proto = c.ip6.NextHeader
			payload = c.ip6.Payload
			network = true
		}
	}
	if !network {
		return model.Observation{}, fmt.Errorf("%w: no IP header", ErrUnclassifiable)
	}

	switch proto {
	case layers.IPProtocolTCP:
		obs.Protocol = model.ProtocolTCP
		// Non-first fragments carry no transport header.
		if fragmented {
			break
		}
		if err := c.tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return model.Observation{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
		}
		obs.SrcPort = uint16(c.tcp.SrcPort)
		obs.DstPort = uint16(c.tcp.DstPort)
	case layers.IPProtocolUDP:
		obs.Protocol = model.ProtocolUDP
		if fragmented {
			break
		}
		if err := c.udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return model.Observation{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
		}
		obs.SrcPort = uint16(c.udp.SrcPort)
		obs.DstPort = uint16(c.udp.DstPort)
	default:
		obs.Protocol = model.ProtocolOther
	}

	return obs, nil
}

// ClassifyAt is Classify with the capture timestamp attached to the observation.
func (c *Classifier) ClassifyAt(frame []byte, ts time.Time) (model.Observation, error) {
	obs, err := c.Classify(frame)
	if err != nil {
		return obs, err
	}
	obs.Timestamp = ts
	return obs, nil
}

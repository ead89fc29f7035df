package model

import (
	"net"
	"strconv"
	"time"
)

// Protocol is the transport-level tag of an observation.
type Protocol string

const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolOther Protocol = "Other"
)

// Observation holds the connection-relevant fields extracted from a single frame.
type Observation struct {
	Timestamp time.Time
	SrcIP     string
	SrcPort   uint16
	DstIP     string
	DstPort   uint16
	Protocol  Protocol
	// Length is the size of the frame on the wire.
	Length int
}

// Key returns the directional identity of the flow this observation belongs to.
func (o Observation) Key() FlowKey {
	return FlowKey{SrcIP: o.SrcIP, SrcPort: o.SrcPort, DstIP: o.DstIP, DstPort: o.DstPort}
}

// FlowKey identifies a connection record. A reply flow in the opposite
// direction has a different key.
type FlowKey struct {
	SrcIP   string
	SrcPort uint16
	DstIP   string
	DstPort uint16
}

// String renders the key as "src:port->dst:port".
func (k FlowKey) String() string {
	return net.JoinHostPort(k.SrcIP, strconv.Itoa(int(k.SrcPort))) + "->" +
		net.JoinHostPort(k.DstIP, strconv.Itoa(int(k.DstPort)))
}

// Connection is the deduplicated record of one direction of one flow.
// Its fields are fixed by the first observation of the flow.
type Connection struct {
	SrcIP     string
	SrcPort   uint16
	SrcDomain string
	DstIP     string
	DstPort   uint16
	DstDomain string
	Protocol  Protocol
	FirstSeen time.Time
}

// Key returns the identity key of the connection.
func (c Connection) Key() FlowKey {
	return FlowKey{SrcIP: c.SrcIP, SrcPort: c.SrcPort, DstIP: c.DstIP, DstPort: c.DstPort}
}

// Snapshot is an immutable point-in-time copy of the aggregate state.
type Snapshot struct {
	Timestamp      time.Time
	TotalPackets   uint64
	TotalBytes     uint64
	ProtocolCounts map[Protocol]uint64
	Connections    []Connection

	// UntrackedObservations counts observations of flows that were not added
	// to the connection table because it reached its configured bound.
	UntrackedObservations uint64
}

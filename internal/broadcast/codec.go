package broadcast

import (
	"errors"
	"fmt"
	"time"

	"Go2NetMonitor/internal/model"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// maxChunks bounds the part count accepted from the wire.
const maxChunks = 1 << 16

// ErrMessageTooLarge is returned when a snapshot cannot be split into
// messages that fit the payload limit.
var ErrMessageTooLarge = errors.New("snapshot message exceeds the payload limit")

// chunk is one message of a broadcast snapshot. Every chunk carries the
// counters; the connections of all chunks sharing Seq, in Index order,
// form the connection table.
type chunk struct {
	Seq      uint64
	Index    int
	Count    int
	Snapshot model.Snapshot
}

// EncodeSnapshot serializes a snapshot as a single protobuf Struct. Counters
// travel as protobuf numbers (doubles), exact up to 2^53.
func EncodeSnapshot(snapshot model.Snapshot) ([]byte, error) {
	return encodeChunk(chunk{Count: 1, Snapshot: snapshot})
}

// EncodeChunks serializes a snapshot into messages of at most maxBytes each.
// The connection table is split into 1, 2, 4, ... balanced parts until every
// message fits.
func EncodeChunks(snapshot model.Snapshot, seq uint64, maxBytes int) ([][]byte, error) {
	conns := snapshot.Connections
	for parts := 1; ; parts *= 2 {
		if parts > len(conns) && parts > 1 {
			parts = len(conns)
		}
		msgs, fits, err := encodeParts(snapshot, seq, parts, maxBytes)
		if err != nil {
			return nil, err
		}
		if fits {
			return msgs, nil
		}
		if parts >= len(conns) {
			return nil, fmt.Errorf("%w: %d bytes allowed", ErrMessageTooLarge, maxBytes)
		}
	}
}

func encodeParts(snapshot model.Snapshot, seq uint64, parts, maxBytes int) ([][]byte, bool, error) {
	conns := snapshot.Connections
	msgs := make([][]byte, 0, parts)
	for i := 0; i < parts; i++ {
		part := snapshot
		part.Connections = conns[i*len(conns)/parts : (i+1)*len(conns)/parts]
		data, err := encodeChunk(chunk{Seq: seq, Index: i, Count: parts, Snapshot: part})
		if err != nil {
			return nil, false, err
		}
		if len(data) > maxBytes {
			return nil, false, nil
		}
		msgs = append(msgs, data)
	}
	return msgs, true, nil
}

func encodeChunk(c chunk) ([]byte, error) {
	snapshot := c.Snapshot
	protocols := make(map[string]interface{}, len(snapshot.ProtocolCounts))
	for proto, n := range snapshot.ProtocolCounts {
		protocols[string(proto)] = n
	}

	conns := make([]interface{}, 0, len(snapshot.Connections))
	for _, conn := range snapshot.Connections {
		conns = append(conns, map[string]interface{}{
			"src_ip":     conn.SrcIP,
			"src_port":   uint32(conn.SrcPort),
			"src_domain": conn.SrcDomain,
			"dst_ip":     conn.DstIP,
			"dst_port":   uint32(conn.DstPort),
			"dst_domain": conn.DstDomain,
			"protocol":   string(conn.Protocol),
			"first_seen": encodeTime(conn.FirstSeen),
		})
	}

	fields := map[string]interface{}{
		"timestamp":              encodeTime(snapshot.Timestamp),
		"total_packets":          snapshot.TotalPackets,
		"total_bytes":            snapshot.TotalBytes,
		"untracked_observations": snapshot.UntrackedObservations,
		"protocol_counts":        protocols,
		"connections":            conns,
	}
	if c.Count > 1 {
		fields["seq"] = c.Seq
		fields["chunk"] = c.Index
		fields["chunks"] = c.Count
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot message: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeSnapshot is the inverse of EncodeSnapshot. For a chunked message it
// returns only the connections that message carries.
func DecodeSnapshot(data []byte) (model.Snapshot, error) {
	c, err := decodeChunk(data)
	return c.Snapshot, err
}

func decodeChunk(data []byte) (chunk, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return chunk{}, fmt.Errorf("failed to unmarshal snapshot message: %w", err)
	}
	fields := s.GetFields()

	c := chunk{
		Seq:   uint64(fields["seq"].GetNumberValue()),
		Index: int(fields["chunk"].GetNumberValue()),
		Count: int(fields["chunks"].GetNumberValue()),
	}
	if c.Count <= 1 {
		c.Index, c.Count = 0, 1
	}
	if c.Count > maxChunks || c.Index < 0 || c.Index >= c.Count {
		return chunk{}, fmt.Errorf("invalid chunk %d of %d in snapshot message", c.Index, c.Count)
	}

	snapshot := model.Snapshot{
		Timestamp:             decodeTime(fields["timestamp"]),
		TotalPackets:          uint64(fields["total_packets"].GetNumberValue()),
		TotalBytes:            uint64(fields["total_bytes"].GetNumberValue()),
		UntrackedObservations: uint64(fields["untracked_observations"].GetNumberValue()),
		ProtocolCounts:        make(map[model.Protocol]uint64),
	}
	for proto, v := range fields["protocol_counts"].GetStructValue().GetFields() {
		snapshot.ProtocolCounts[model.Protocol(proto)] = uint64(v.GetNumberValue())
	}

	for _, v := range fields["connections"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		if f == nil {
			return chunk{}, fmt.Errorf("malformed connection entry in snapshot message")
		}
		snapshot.Connections = append(snapshot.Connections, model.Connection{
			SrcIP:     f["src_ip"].GetStringValue(),
			SrcPort:   uint16(f["src_port"].GetNumberValue()),
			SrcDomain: f["src_domain"].GetStringValue(),
			DstIP:     f["dst_ip"].GetStringValue(),
			DstPort:   uint16(f["dst_port"].GetNumberValue()),
			DstDomain: f["dst_domain"].GetStringValue(),
			Protocol:  model.Protocol(f["protocol"].GetStringValue()),
			FirstSeen: decodeTime(f["first_seen"]),
		})
	}
	c.Snapshot = snapshot
	return c, nil
}

// Assembler rebuilds snapshots from chunked messages. Parts of one snapshot
// must not interleave with another's; a part with a new sequence number
// discards an incomplete set. It is not safe for concurrent use.
type Assembler struct {
	seq      uint64
	parts    [][]model.Connection
	have     []bool
	received int
}

// Add accepts one message and returns the snapshot once all of its parts
// have arrived.
func (a *Assembler) Add(data []byte) (model.Snapshot, bool, error) {
	c, err := decodeChunk(data)
	if err != nil {
		return model.Snapshot{}, false, err
	}
	if c.Count == 1 {
		a.reset()
		return c.Snapshot, true, nil
	}

	if a.parts == nil || a.seq != c.Seq || len(a.parts) != c.Count {
		a.reset()
		a.seq = c.Seq
		a.parts = make([][]model.Connection, c.Count)
		a.have = make([]bool, c.Count)
	}
	if !a.have[c.Index] {
		a.have[c.Index] = true
		a.parts[c.Index] = c.Snapshot.Connections
		a.received++
	}
	if a.received < len(a.parts) {
		return model.Snapshot{}, false, nil
	}

	snapshot := c.Snapshot
	snapshot.Connections = nil
	for _, part := range a.parts {
		snapshot.Connections = append(snapshot.Connections, part...)
	}
	a.reset()
	return snapshot, true, nil
}

func (a *Assembler) reset() {
	a.seq, a.parts, a.have, a.received = 0, nil, nil, 0
}

func encodeTime(t time.Time) map[string]interface{} {
	ts := timestamppb.New(t)
	return map[string]interface{}{
		"seconds": ts.GetSeconds(),
		"nanos":   ts.GetNanos(),
	}
}

func decodeTime(v *structpb.Value) time.Time {
	f := v.GetStructValue().GetFields()
	if f == nil {
		return time.Time{}
	}
	ts := &timestamppb.Timestamp{
		Seconds: int64(f["seconds"].GetNumberValue()),
		Nanos:   int32(f["nanos"].GetNumberValue()),
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}
	}
	return ts.AsTime()
}

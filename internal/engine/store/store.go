package store

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"Go2NetMonitor/internal/model"

	"github.com/sirupsen/logrus"
)

const defaultShardCount = 16

// shard is a part of the sharded store. Its counters only ever see
// observations whose flow key hashes to it, so one Record touches one shard.
type shard struct {
	mu        sync.RWMutex
	packets   uint64
	bytes     uint64
	protocols map[model.Protocol]uint64
	untracked uint64
	conns     map[model.FlowKey]model.Connection
}

// Options configures a Store.
type Options struct {
	NumShards uint32
	// MaxConnections bounds the connection table. 0 keeps it unbounded.
	MaxConnections int
	// Resolver annotates new connections with hostnames. nil disables resolution.
	Resolver model.Resolver
	Logger   logrus.FieldLogger
}

// Store holds the aggregate metrics: packet and byte totals, per-protocol counters
// and the deduplicated connection table.
//
// Record commits all of its effects under the lock of a single shard.
// Snapshot read-locks every shard in index order before copying, so it sees
// each Record either completely or not at all.
type Store struct {
	shards     []*shard
	shardCount uint32
	resolver   model.Resolver
	maxConns   int64
	tracked    atomic.Int64
	log        logrus.FieldLogger
}

var _ model.MetricsStore = (*Store)(nil)

// New creates an empty store.
func New(opts Options) *Store {
	numShards := opts.NumShards
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Store{
		shards:     make([]*shard, numShards),
		shardCount: numShards,
		resolver:   opts.Resolver,
		maxConns:   int64(opts.MaxConnections),
		log:        logger,
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			protocols: make(map[model.Protocol]uint64),
			conns:     make(map[model.FlowKey]model.Connection),
		}
	}
	logger.WithFields(logrus.Fields{
		"shards":          numShards,
		"max_connections": opts.MaxConnections,
		"resolve":         opts.Resolver != nil,
	}).Debug("Metrics store created")
	return s
}

// Record counts an observation and registers its connection on first sight.
//
// Hostnames are resolved before the shard lock is taken, and only when the
// flow is not yet known. If two first observations of the same flow race,
// the one that commits first wins and the other only bumps the counters.
func (s *Store) Record(ctx context.Context, obs model.Observation) {
	key := obs.Key()
	sh := s.getShard(key)

	sh.mu.RLock()
	_, known := sh.conns[key]
	sh.mu.RUnlock()

	var conn model.Connection
	pending := !known && !s.full()
	if pending {
		conn = s.newConnection(ctx, obs)
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.packets++
	sh.bytes += uint64(obs.Length)
	sh.protocols[obs.Protocol]++
	if known {
		return
	}
	if _, ok := sh.conns[key]; ok {
		return
	}
	if !pending || !s.reserve() {
		sh.untracked++
		return
	}
	sh.conns[key] = conn
}

// Snapshot returns a deep copy of the current state as of a single instant.
func (s *Store) Snapshot() model.Snapshot {
	for _, sh := range s.shards {
		sh.mu.RLock()
	}
	defer func() {
		for _, sh := range s.shards {
			sh.mu.RUnlock()
		}
	}()

	snap := model.Snapshot{
		Timestamp:      time.Now(),
		ProtocolCounts: make(map[model.Protocol]uint64),
		Connections:    make([]model.Connection, 0, s.tracked.Load()),
	}
	for _, sh := range s.shards {
		snap.TotalPackets += sh.packets
		snap.TotalBytes += sh.bytes
		snap.UntrackedObservations += sh.untracked
		for proto, n := range sh.protocols {
			snap.ProtocolCounts[proto] += n
		}
		for _, c := range sh.conns {
			snap.Connections = append(snap.Connections, c)
		}
	}
	return snap
}

// Len returns the number of connection records.
func (s *Store) Len() int {
	return int(s.tracked.Load())
}

func (s *Store) newConnection(ctx context.Context, obs model.Observation) model.Connection {
	conn := model.Connection{
		SrcIP:     obs.SrcIP,
		SrcPort:   obs.SrcPort,
		DstIP:     obs.DstIP,
		DstPort:   obs.DstPort,
		Protocol:  obs.Protocol,
		FirstSeen: obs.Timestamp,
	}
	if s.resolver != nil {
		conn.SrcDomain = s.resolver.Resolve(ctx, obs.SrcIP)
		conn.DstDomain = s.resolver.Resolve(ctx, obs.DstIP)
	}
	return conn
}

func (s *Store) full() bool {
	return s.maxConns > 0 && s.tracked.Load() >= s.maxConns
}

// reserve claims a slot in the connection table.
func (s *Store) reserve() bool {
	if s.maxConns <= 0 {
		s.tracked.Add(1)
		return true
	}
	for {
		n := s.tracked.Load()
		if n >= s.maxConns {
			return false
		}
		if s.tracked.CompareAndSwap(n, n+1) {
			if n+1 == s.maxConns {
				s.log.WithField("max_connections", s.maxConns).Warn("Connection table is full, new flows are counted but not tracked")
			}
			return true
		}
	}
}

// getShard returns the appropriate shard for a given key.
func (s *Store) getShard(key model.FlowKey) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key.SrcIP))
	hasher.Write([]byte{byte(key.SrcPort >> 8), byte(key.SrcPort), '>'})
	hasher.Write([]byte(key.DstIP))
	hasher.Write([]byte{byte(key.DstPort >> 8), byte(key.DstPort)})
	return s.shards[hasher.Sum32()%s.shardCount]
}

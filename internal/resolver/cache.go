package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"Go2NetMonitor/internal/model"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// LookupFunc performs a reverse lookup of a textual IP address.
type LookupFunc func(ctx context.Context, addr string) ([]string, error)

// entries is the storage behind the cache: a plain map when unbounded, an LRU otherwise.
type entries interface {
	Get(ip string) (string, bool)
	Add(ip, name string)
	Len() int
}

type mapEntries struct {
	mu sync.RWMutex
	m  map[string]string
}

func (e *mapEntries) Get(ip string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	name, ok := e.m[ip]
	return name, ok
}

func (e *mapEntries) Add(ip, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.m[ip] = name
}

func (e *mapEntries) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.m)
}

type lruEntries struct {
	c *lru.Cache[string, string]
}

func (e lruEntries) Get(ip string) (string, bool) { return e.c.Get(ip) }
func (e lruEntries) Add(ip, name string)          { e.c.Add(ip, name) }
func (e lruEntries) Len() int                     { return e.c.Len() }

// Options configures a Cache.
type Options struct {
	// Lookup defaults to net.DefaultResolver.LookupAddr.
	Lookup LookupFunc
	// Timeout bounds a single lookup. 0 leaves it to the system resolver.
	Timeout time.Duration
	// MaxEntries bounds the cache with least-recently-used eviction. 0 keeps every entry for the life of the process.
	MaxEntries int
	Logger     logrus.FieldLogger
}

// Cache memoizes reverse lookups. Failed lookups are cached as an empty
// name, so an unresolvable address costs one lookup. Concurrent misses for
// the same address may each perform a lookup; the stored result is the same.
type Cache struct {
	entries entries
	lookup  LookupFunc
	timeout time.Duration
	lookups atomic.Uint64
	log     logrus.FieldLogger
}

var _ model.Resolver = (*Cache)(nil)

// New creates a reverse-lookup cache.
func New(opts Options) (*Cache, error) {
	c := &Cache{
		lookup:  opts.Lookup,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
	if c.lookup == nil {
		c.lookup = net.DefaultResolver.LookupAddr
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}

	if opts.MaxEntries > 0 {
		l, err := lru.New[string, string](opts.MaxEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to create resolver cache: %w", err)
		}
		c.entries = lruEntries{c: l}
	} else {
		c.entries = &mapEntries{m: make(map[string]string)}
	}
	return c, nil
}

// Resolve returns the hostname for ip, performing a lookup only on a cache miss.
func (c *Cache) Resolve(ctx context.Context, ip string) string {
	if name, ok := c.entries.Get(ip); ok {
		return name
	}

	name := c.lookupName(ctx, ip)
	// The outcome of a cancelled caller is not cached.
	if ctx.Err() != nil {
		return name
	}
	c.entries.Add(ip, name)
	return name
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Lookups returns the number of lookups performed since creation.
func (c *Cache) Lookups() uint64 {
	return c.lookups.Load()
}

func (c *Cache) lookupName(ctx context.Context, ip string) string {
	if _, err := netip.ParseAddr(ip); err != nil {
		c.log.WithField("ip", ip).Debug("Skipping reverse lookup of unparseable address")
		return ""
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.lookups.Add(1)
	names, err := c.lookup(ctx, ip)
	if err != nil || len(names) == 0 {
		c.log.WithFields(logrus.Fields{"ip": ip, "error": err}).Debug("Reverse lookup found no name")
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

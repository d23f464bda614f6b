// Package dsconfig implements the data-source configuration resolver:
// it maps a client's raw property set to an immutable, cached
// DataSourceConfiguration, preserving reference identity for equal inputs
// between clearCache calls.
package dsconfig

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Configuration is an immutable snapshot of a resolved data-source
// configuration. Once handed out by Resolve, its fields never change.
type Configuration struct {
	DataSourceName    string
	PoolEnabled       bool
	MaximumPoolSize   int
	MinimumIdle       int
	IdleTimeoutMS     int
	MaxLifetimeMS     int
	ConnectionTimeout int

	// PassThrough carries every property key not recognized above,
	// unchanged, for use by the pool provider and backend dialer.
	PassThrough map[string]string
}

var recognizedKeys = map[string]struct{}{
	"dataSourceName":    {},
	"poolEnabled":       {},
	"maximumPoolSize":   {},
	"minimumIdle":       {},
	"idleTimeout":       {},
	"maxLifetime":       {},
	"connectionTimeout": {},
}

// Defaults holds the built-in values applied for any option not present in
// a client's property set.
type Defaults struct {
	PoolEnabled       bool
	MaximumPoolSize   int
	MinimumIdle       int
	IdleTimeoutMS     int
	MaxLifetimeMS     int
	ConnectionTimeout int
}

// Resolver resolves and caches DataSourceConfiguration values. The zero
// value is not usable; construct with New.
type Resolver struct {
	defaults Defaults

	mu    sync.RWMutex
	cache map[uint64]*Configuration
}

// New creates a Resolver using defaults for any option a client's property
// set leaves unset.
func New(defaults Defaults) *Resolver {
	return &Resolver{
		defaults: defaults,
		cache:    make(map[uint64]*Configuration),
	}
}

// Resolve maps props to a Configuration, returning the same *Configuration
// pointer for an equal property set resolved previously (and not evicted
// by an intervening ClearCache), so callers can compare configurations by
// pointer identity instead of deep equality.
func (r *Resolver) Resolve(props map[string]string) *Configuration {
	key := canonicalKey(props)

	r.mu.RLock()
	if cfg, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return cfg
	}
	r.mu.RUnlock()

	cfg := r.build(props)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[key]; ok {
		return existing
	}
	r.cache[key] = cfg
	return cfg
}

func (r *Resolver) build(props map[string]string) *Configuration {
	cfg := &Configuration{
		DataSourceName:    props["dataSourceName"],
		PoolEnabled:       r.defaults.PoolEnabled,
		MaximumPoolSize:   r.defaults.MaximumPoolSize,
		MinimumIdle:       r.defaults.MinimumIdle,
		IdleTimeoutMS:     r.defaults.IdleTimeoutMS,
		MaxLifetimeMS:     r.defaults.MaxLifetimeMS,
		ConnectionTimeout: r.defaults.ConnectionTimeout,
		PassThrough:       make(map[string]string),
	}

	if v, ok := props["poolEnabled"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PoolEnabled = b
		}
	}
	setIntOption(&cfg.MaximumPoolSize, props, "maximumPoolSize")
	setIntOption(&cfg.MinimumIdle, props, "minimumIdle")
	setIntOption(&cfg.IdleTimeoutMS, props, "idleTimeout")
	setIntOption(&cfg.MaxLifetimeMS, props, "maxLifetime")
	setIntOption(&cfg.ConnectionTimeout, props, "connectionTimeout")

	for k, v := range props {
		if _, recognized := recognizedKeys[k]; recognized {
			continue
		}
		cfg.PassThrough[k] = v
	}

	return cfg
}

// setIntOption parses props[key] into dst. A malformed value is silently
// left at its default rather than erroring the whole resolve.
func setIntOption(dst *int, props map[string]string, key string) {
	v, ok := props[key]
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// canonicalKey builds a stable, order-independent identity for a property
// set by sorting keys and hashing the resulting "key=value\n..." form with
// xxhash, the same hashing library go-redis's ring client uses elsewhere in
// this codebase for key distribution.
func canonicalKey(props map[string]string) uint64 {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
		b.WriteByte('\n')
	}

	return xxhash.Sum64String(b.String())
}

// ClearCache discards every cached Configuration. In-flight holders of an
// already-resolved pointer are unaffected, since the old cache map is
// simply replaced, not mutated in place.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[uint64]*Configuration)
}

// CacheSize returns the number of distinct property sets currently cached.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

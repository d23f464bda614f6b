// Package providerreg implements the pool provider registry: it
// discovers available STANDARD and XA pool providers, lets callers select
// a healthy one for a given kind, and demotes a provider whose first pool
// creation attempt fails.
package providerreg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ojp-io/ojp/internal/backend/pgxprovider"
	"github.com/ojp-io/ojp/internal/circuitbreaker"
	"github.com/ojp-io/ojp/internal/logging"
)

// DefaultBreakerConfig mirrors ojp.circuit.breaker.threshold/timeout's
// documented defaults (3 failed pool-creation attempts trips the breaker
// for 60s) and is used unless SetBreakerConfig overrides it.
var DefaultBreakerConfig = circuitbreaker.Config{
	FailureCount:   3,
	WindowDuration: 60 * time.Second,
	OpenDuration:   60 * time.Second,
	HalfOpenProbes: 1,
}

// Kind distinguishes a STANDARD (database/sql) pool provider from an XA
// (two-phase commit) one.
type Kind string

const (
	KindStandard Kind = "standard"
	KindXA       Kind = "xa"
)

// Descriptor describes one registered pool provider.
type Descriptor struct {
	Name         string
	Kind         Kind
	DriverFamily string

	broken atomic.Bool
}

// Broken reports whether a prior pool-creation attempt demoted this
// provider.
func (d *Descriptor) Broken() bool { return d.broken.Load() }

// descriptorFile is the on-disk YAML shape for an extension-loaded
// provider descriptor under ojp.libs.path.
type descriptorFile struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	DriverFamily string `yaml:"driverFamily"`
}

// Registry holds every discovered provider descriptor, keyed by
// (Kind, DriverFamily).
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	libsPath    string

	breakers   *circuitbreaker.Registry
	breakerCfg circuitbreaker.Config
}

func key(kind Kind, driverFamily string) string {
	return string(kind) + "/" + driverFamily
}

// New creates a registry that loads extension descriptors from libsPath on
// Discover. An empty libsPath disables extension loading.
func New(libsPath string) *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		libsPath:    libsPath,
		breakers:    circuitbreaker.NewRegistry(),
		breakerCfg:  DefaultBreakerConfig,
	}
}

// SetBreakerConfig overrides the circuit breaker configuration used for
// per-provider failure tracking, typically from ojp.circuit.breaker.*
// properties.
func (r *Registry) SetBreakerConfig(cfg circuitbreaker.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakerCfg = cfg
	r.breakers = circuitbreaker.NewRegistry()
}

// BreakerStates reports each known provider's circuit breaker state
// ("closed", "open", "half_open"), for internal/metrics to expose as a
// gauge. A provider never demoted reports "closed".
func (r *Registry) BreakerStates() map[string]string {
	return r.breakers.Snapshot()
}

// Register adds a descriptor directly, for built-in providers registered
// once at startup.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[key(d.Kind, d.DriverFamily)] = d
}

// Discover populates the registry with the built-in pgx providers plus any
// YAML descriptor files found under libsPath, supporting third-party
// driver extensions dropped into that directory. A missing or empty
// libsPath is not an error.
func (r *Registry) Discover(ctx context.Context) error {
	r.Register(&Descriptor{Name: "pgx-standard", Kind: KindStandard, DriverFamily: pgxprovider.DriverFamily})
	r.Register(&Descriptor{Name: "pgx-xa", Kind: KindXA, DriverFamily: pgxprovider.DriverFamily})

	return r.loadExtensionDescriptors()
}

func (r *Registry) loadExtensionDescriptors() error {
	if r.libsPath == "" {
		return nil
	}
	entries, err := os.ReadDir(r.libsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("providerreg: read libs path: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(r.libsPath, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("providerreg: read %s: %w", path, err)
		}
		var df descriptorFile
		if err := yaml.Unmarshal(raw, &df); err != nil {
			return fmt.Errorf("providerreg: parse %s: %w", path, err)
		}
		r.Register(&Descriptor{Name: df.Name, Kind: Kind(df.Kind), DriverFamily: df.DriverFamily})
		logging.Op().Info().Str("provider", df.Name).Str("file", path).Msg("registered extension pool provider")
	}
	return nil
}

// Select returns a non-broken descriptor registered for kind.
func (r *Registry) Select(kind Kind) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.descriptors {
		if d.Kind == kind && !d.Broken() {
			return d, nil
		}
	}
	return nil, fmt.Errorf("providerreg: no healthy %s provider registered", kind)
}

// List returns every registered descriptor, for the `ojp-server providers`
// diagnostic command.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	return out
}

// ProviderFor returns the descriptor registered for (kind, driverFamily)
// regardless of its broken state, used by diagnostics and by the XA pool to look up
// the vendor it was configured for.
func (r *Registry) ProviderFor(kind Kind, driverFamily string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[key(kind, driverFamily)]
	if !ok {
		return nil, fmt.Errorf("providerreg: no %s provider registered for driver family %q", kind, driverFamily)
	}
	return d, nil
}

// Demote marks a descriptor broken after its first pool-creation attempt
// fails, so Select skips it until Reload re-discovers providers. The
// failure is also recorded against the provider's circuit breaker purely
// for observability (internal/metrics exposes BreakerStates); the
// broken flag, not the breaker's state, governs Select.
func (r *Registry) Demote(kind Kind, driverFamily string) {
	if d, err := r.ProviderFor(kind, driverFamily); err == nil {
		d.broken.Store(true)
		r.mu.RLock()
		b := r.breakers.Get(key(kind, driverFamily), r.breakerCfg)
		r.mu.RUnlock()
		if b != nil {
			b.RecordFailure()
		}
		logging.Op().Warn().Str("provider", d.Name).Msg("pool provider demoted after failed pool creation")
	}
}

// Reload clears all descriptors, broken flags, and breaker state, then
// re-runs Discover, picking up new or updated extension descriptor files.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	r.descriptors = make(map[string]*Descriptor)
	r.breakers = circuitbreaker.NewRegistry()
	r.mu.Unlock()
	return r.Discover(ctx)
}

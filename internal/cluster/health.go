// Package cluster tracks peer liveness across an OJP cluster and decides
// whether an incoming session should be served locally or redirected to
// a healthier peer, honoring XA branch stickiness.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ojp-io/ojp/internal/cache"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/logging"
	"github.com/ojp-io/ojp/internal/xaregistry"
)

// ErrNoHealthyPeer is returned by OnSessionRequest when the local node is
// draining but no other peer is currently healthy.
var ErrNoHealthyPeer = errors.New("cluster: no healthy peer available")

// Peer is one node's liveness and load snapshot, as seen by this node.
type Peer struct {
	ID             string    `json:"id"`
	Address        string    `json:"address"`
	Healthy        bool      `json:"healthy"`
	Draining       bool      `json:"draining"`
	ActiveSessions int       `json:"active_sessions"`
	LastSeen       time.Time `json:"last_seen"`
}

// SessionInfo describes the session a caller is asking Health to place.
type SessionInfo struct {
	SessionUUID string
	Hash        connpool.Hash
	// XAPinned is true when the session currently owns one or more live
	// XA branches against Hash and must never be redirected mid-branch.
	XAPinned bool
}

// RedirectHint tells a caller to hand the session off to a different
// peer. A nil hint (with nil error) means: serve locally.
type RedirectHint struct {
	PeerID  string
	Address string
}

func peerCacheKey(id string) string { return "cluster:peer:" + id }

const peerStateTTL = 90 * time.Second

// Health holds this node's view of cluster peer liveness, persisted to
// the shared cache so every node's view converges, and consults
// xaregistry before ever redirecting a session with in-flight XA work.
type Health struct {
	localID     string
	c           cache.Cache
	invalidator *cache.CacheInvalidator
	registries  *xaregistry.Registries

	heartbeatTimeout time.Duration

	mu    sync.RWMutex
	peers map[string]*Peer
	local *Peer
}

// NewHealth creates a Health tracker for the local node identified by
// localID, backed by c for cross-node peer-state exchange and registries
// for XA-stickiness checks.
func NewHealth(localID, localAddress string, c cache.Cache, registries *xaregistry.Registries, heartbeatTimeout time.Duration) *Health {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 30 * time.Second
	}
	local := &Peer{ID: localID, Address: localAddress, Healthy: true, LastSeen: time.Now()}
	return &Health{
		localID:          localID,
		c:                c,
		registries:       registries,
		heartbeatTimeout: heartbeatTimeout,
		peers:            map[string]*Peer{localID: local},
		local:            local,
	}
}

// SetInvalidator wires a CacheInvalidator so that every PublishLocalState
// call also broadcasts an immediate invalidation for this node's peer-state
// key, letting peers running a tiered cache evict their stale L1 entry
// instead of waiting out its TTL. Safe to call at most once, before the
// heartbeat loop starts.
func (h *Health) SetInvalidator(ci *cache.CacheInvalidator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidator = ci
}

// MarkPeer records a liveness observation for peer id, e.g. from a
// gossip message or a failed RPC. A healthy=false mark does not remove
// the peer — it simply excludes it from redirect candidates until a
// later healthy mark (or PublishLocalState refresh from the peer
// itself) clears it.
func (h *Health) MarkPeer(id string, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	if !ok {
		p = &Peer{ID: id}
		h.peers[id] = p
	}
	p.Healthy = healthy
	p.LastSeen = time.Now()
}

// RegisterPeer adds or refreshes a peer's address/load snapshot, as
// received from that peer's own published state.
func (h *Health) RegisterPeer(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.ID == h.localID {
		return
	}
	cp := p
	cp.LastSeen = time.Now()
	h.peers[p.ID] = &cp
}

// OnSessionRequest decides where info's session should be served. A
// session with a live XA branch against its hash is always kept local —
// consulting the XA registry before any redirect decision — regardless
// of local load or draining state, since moving it would orphan the
// branch's pinned XA session.
func (h *Health) OnSessionRequest(info SessionInfo) (*RedirectHint, error) {
	if info.XAPinned || (h.registries != nil && h.registries.For(info.Hash).Len() > 0) {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.local.Draining {
		return nil, nil
	}

	var best *Peer
	for id, p := range h.peers {
		if id == h.localID || !p.Healthy || p.Draining {
			continue
		}
		if time.Since(p.LastSeen) > h.heartbeatTimeout {
			continue
		}
		if best == nil || p.ActiveSessions < best.ActiveSessions {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNoHealthyPeer
	}
	return &RedirectHint{PeerID: best.ID, Address: best.Address}, nil
}

// Drain marks the local node as draining: new non-XA-pinned sessions
// are redirected to a healthy peer via OnSessionRequest, while existing
// XA branches are left to complete undisturbed. It publishes the
// draining flag to the shared cache so peers stop routing fresh work
// here.
func (h *Health) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.local.Draining = true
	h.mu.Unlock()
	return h.PublishLocalState(ctx)
}

// SetActiveSessions updates the local node's load snapshot ahead of the
// next PublishLocalState call.
func (h *Health) SetActiveSessions(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.local.ActiveSessions = n
}

// PublishLocalState writes the local node's current liveness snapshot to
// the shared cache, so peers can discover it without a direct connection.
func (h *Health) PublishLocalState(ctx context.Context) error {
	h.mu.Lock()
	h.local.LastSeen = time.Now()
	blob, err := json.Marshal(h.local)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if h.c == nil {
		return nil
	}
	if err := h.c.Set(ctx, peerCacheKey(h.localID), blob, peerStateTTL); err != nil {
		return err
	}
	h.mu.RLock()
	ci := h.invalidator
	h.mu.RUnlock()
	if ci != nil {
		_ = ci.PublishInvalidation(ctx, peerCacheKey(h.localID))
	}
	return nil
}

// RefreshPeer pulls peerID's published state from the shared cache and
// merges it into the local peer table.
func (h *Health) RefreshPeer(ctx context.Context, peerID string) error {
	if h.c == nil {
		return nil
	}
	blob, err := h.c.Get(ctx, peerCacheKey(peerID))
	if err != nil {
		return fmt.Errorf("cluster: refresh peer %s: %w", peerID, err)
	}
	var p Peer
	if err := json.Unmarshal(blob, &p); err != nil {
		return err
	}
	h.RegisterPeer(p)
	return nil
}

// StartHeartbeatLoop periodically publishes local state until ctx is
// canceled.
func (h *Health) StartHeartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.PublishLocalState(ctx); err != nil {
				logging.Op().Warn().Err(err).Msg("failed to publish cluster peer state")
			}
		}
	}
}

// ListPeers returns a snapshot of every known peer, including the local
// node.
func (h *Health) ListPeers() []Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, *p)
	}
	return out
}

package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojp-io/ojp/internal/cache"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/xaregistry"
)

func TestOnSessionRequest_ServesLocallyWhenNotDraining(t *testing.T) {
	h := NewHealth("node-a", "10.0.0.1:7000", cache.NewInMemoryCache(), xaregistry.NewRegistries(), time.Minute)
	hint, err := h.OnSessionRequest(SessionInfo{SessionUUID: "s1", Hash: connpool.Compute("u", "p", nil)})
	require.NoError(t, err)
	assert.Nil(t, hint)
}

func TestOnSessionRequest_RedirectsWhenDrainingAndNotXAPinned(t *testing.T) {
	h := NewHealth("node-a", "10.0.0.1:7000", cache.NewInMemoryCache(), xaregistry.NewRegistries(), time.Minute)
	h.RegisterPeer(Peer{ID: "node-b", Address: "10.0.0.2:7000", Healthy: true, ActiveSessions: 1})
	require.NoError(t, h.Drain(context.Background()))

	hint, err := h.OnSessionRequest(SessionInfo{SessionUUID: "s1", Hash: connpool.Compute("u", "p", nil)})
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, "node-b", hint.PeerID)
}

func TestOnSessionRequest_NeverRedirectsXAPinnedSession(t *testing.T) {
	h := NewHealth("node-a", "10.0.0.1:7000", cache.NewInMemoryCache(), xaregistry.NewRegistries(), time.Minute)
	h.RegisterPeer(Peer{ID: "node-b", Address: "10.0.0.2:7000", Healthy: true})
	require.NoError(t, h.Drain(context.Background()))

	hint, err := h.OnSessionRequest(SessionInfo{SessionUUID: "s1", XAPinned: true})
	require.NoError(t, err)
	assert.Nil(t, hint)
}

func TestOnSessionRequest_RedirectsWhenRegistryHasNoBranchForHash(t *testing.T) {
	regs := xaregistry.NewRegistries()
	hash := connpool.Compute("u", "p", nil)
	h := NewHealth("node-a", "10.0.0.1:7000", cache.NewInMemoryCache(), regs, time.Minute)
	h.RegisterPeer(Peer{ID: "node-b", Address: "10.0.0.2:7000", Healthy: true})
	require.NoError(t, h.Drain(context.Background()))

	hint, err := h.OnSessionRequest(SessionInfo{SessionUUID: "s1", Hash: hash})
	require.NoError(t, err)
	assert.NotNil(t, hint)
}

func TestOnSessionRequest_NoHealthyPeerReturnsError(t *testing.T) {
	h := NewHealth("node-a", "10.0.0.1:7000", cache.NewInMemoryCache(), xaregistry.NewRegistries(), time.Minute)
	require.NoError(t, h.Drain(context.Background()))

	_, err := h.OnSessionRequest(SessionInfo{SessionUUID: "s1", Hash: connpool.Compute("u", "p", nil)})
	assert.ErrorIs(t, err, ErrNoHealthyPeer)
}

func TestMarkPeer_ExcludesUnhealthyFromRedirect(t *testing.T) {
	h := NewHealth("node-a", "10.0.0.1:7000", cache.NewInMemoryCache(), xaregistry.NewRegistries(), time.Minute)
	h.RegisterPeer(Peer{ID: "node-b", Address: "10.0.0.2:7000", Healthy: true})
	h.MarkPeer("node-b", false)
	require.NoError(t, h.Drain(context.Background()))

	_, err := h.OnSessionRequest(SessionInfo{SessionUUID: "s1", Hash: connpool.Compute("u", "p", nil)})
	assert.ErrorIs(t, err, ErrNoHealthyPeer)
}

func TestPublishAndRefreshPeerState_RoundTripsThroughCache(t *testing.T) {
	c := cache.NewInMemoryCache()
	a := NewHealth("node-a", "10.0.0.1:7000", c, xaregistry.NewRegistries(), time.Minute)
	a.SetActiveSessions(3)
	require.NoError(t, a.PublishLocalState(context.Background()))

	b := NewHealth("node-b", "10.0.0.2:7000", c, xaregistry.NewRegistries(), time.Minute)
	require.NoError(t, b.RefreshPeer(context.Background(), "node-a"))

	peers := b.ListPeers()
	var found bool
	for _, p := range peers {
		if p.ID == "node-a" {
			found = true
			assert.Equal(t, 3, p.ActiveSessions)
		}
	}
	assert.True(t, found)
}

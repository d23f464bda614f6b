package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojp-io/ojp/api/ojppb"
	"github.com/ojp-io/ojp/internal/cache"
	"github.com/ojp-io/ojp/internal/cluster"
)

func newTestDispatcher(t *testing.T, ac *ActionContext) *Dispatcher {
	t.Helper()
	d, err := New(ac, WorkerPoolConfig{WorkerCount: 2, QueueSize: 4}, All()...)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d
}

func TestNew_RejectsDuplicateActionKind(t *testing.T) {
	ac := newTestActionContext(t)
	_, err := New(ac, WorkerPoolConfig{}, ConnectAction{}, ConnectAction{})
	assert.ErrorContains(t, err, "duplicate action registered")
}

func TestDispatch_UnknownKindFails(t *testing.T) {
	ac := newTestActionContext(t)
	d := newTestDispatcher(t, ac)

	_, err := d.Dispatch(context.Background(), &Request{Kind: "not-a-real-kind"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDispatch_StreamingOnlyActionRejectsUnaryCall(t *testing.T) {
	ac := newTestActionContext(t)
	d := newTestDispatcher(t, ac)

	_, err := d.Dispatch(context.Background(), &Request{Kind: KindCreateLob})
	assert.ErrorIs(t, err, ErrNotUnary)
}

func TestDispatch_ConnectRunsWithoutClusterCheck(t *testing.T) {
	ac := newTestActionContext(t)
	d := newTestDispatcher(t, ac)

	resp, err := d.Dispatch(context.Background(), &Request{
		Kind: KindConnect,
		Payload: &ojppb.ConnectRequest{
			URL:        "jdbc:ojp[localhost:1059]_jdbc:postgresql://backend-host/mydb",
			Properties: map[string]string{"user": "alice"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Payload.(*ojppb.ConnectResponse).SessionUUID)
}

func TestDispatch_RedirectsWhenLocalNodeIsDraining(t *testing.T) {
	ac := newTestActionContext(t)
	ac.Cluster = cluster.NewHealth("local", "local:1059", cache.NewInMemoryCache(), ac.XARegistry, time.Minute)
	ac.Cluster.RegisterPeer(cluster.Peer{ID: "peer-b", Address: "peer-b:1059", Healthy: true, ActiveSessions: 0, LastSeen: time.Now()})
	require.NoError(t, ac.Cluster.Drain(context.Background()))

	d := newTestDispatcher(t, ac)
	uuid := connectedSession(t, ac)

	resp, err := d.Dispatch(context.Background(), &Request{
		Kind:        KindExecuteUpdate,
		SessionUUID: uuid,
		Payload:     &ojppb.ExecuteUpdateRequest{SessionUUID: uuid, SQL: "UPDATE t SET x = 1"},
	})
	require.NoError(t, err)
	hint, ok := resp.Payload.(*cluster.RedirectHint)
	require.True(t, ok, "expected a redirect hint, got %T", resp.Payload)
	assert.Equal(t, "peer-b", hint.PeerID)
}

func TestDispatch_NeverRedirectsXAPinnedSessionEvenWhileDraining(t *testing.T) {
	ac := newTestActionContext(t)
	ac.Cluster = cluster.NewHealth("local", "local:1059", cache.NewInMemoryCache(), ac.XARegistry, time.Minute)
	ac.Cluster.RegisterPeer(cluster.Peer{ID: "peer-b", Address: "peer-b:1059", Healthy: true, LastSeen: time.Now()})
	require.NoError(t, ac.Cluster.Drain(context.Background()))

	d := newTestDispatcher(t, ac)
	uuid := connectedSession(t, ac)
	s, ok := ac.Sessions.Get(uuid)
	require.True(t, ok)

	xid := newTestXidKey(t)
	xaSession := newFakeXaSession(t)
	require.NoError(t, ac.XARegistry.For(s.Hash).RegisterExistingSession(xid, uuid, xaSession))

	resp, err := d.Dispatch(context.Background(), &Request{
		Kind:        KindExecuteUpdate,
		SessionUUID: uuid,
		Payload:     &ojppb.ExecuteUpdateRequest{SessionUUID: uuid, SQL: "UPDATE t SET x = 1"},
	})
	require.NoError(t, err)
	_, wasRedirected := resp.Payload.(*cluster.RedirectHint)
	assert.False(t, wasRedirected, "an XA-pinned session must never be redirected mid-branch")
}

func TestDispatchStream_RoutesToStreamingAction(t *testing.T) {
	ac := newTestActionContext(t)
	d := newTestDispatcher(t, ac)
	uuid := connectedSession(t, ac)

	chunks := make(chan []byte, 1)
	chunks <- []byte("lob-bytes")
	close(chunks)

	resp, err := d.DispatchStream(context.Background(), &Request{
		Kind:        KindCreateLob,
		SessionUUID: uuid,
		Payload:     &ojppb.CreateLobChunk{SessionUUID: uuid},
	}, chunks)
	require.NoError(t, err)
	assert.Equal(t, int64(len("lob-bytes")), resp.Payload.(*ojppb.CreateLobResponse).TotalBytes)
}

func TestDispatchStream_UnaryOnlyActionRejectsStreamingCall(t *testing.T) {
	ac := newTestActionContext(t)
	d := newTestDispatcher(t, ac)

	_, err := d.DispatchStream(context.Background(), &Request{Kind: KindConnect}, make(chan []byte))
	assert.ErrorIs(t, err, ErrNotStreaming)
}

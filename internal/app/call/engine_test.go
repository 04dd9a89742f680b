package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/core/coretest"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/dkeye/relay/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reg     *app.Registry
	out     *coretest.Outbox
	history *store.InMemoryStore
	metrics *metrics.Metrics
	engine  *Engine
	conns   map[domain.UserID]*coretest.Conn
}

func newFixture(t *testing.T, users ...domain.UserID) *fixture {
	t.Helper()
	f := &fixture{
		reg:     app.NewRegistry(),
		out:     &coretest.Outbox{},
		history: store.NewInMemoryStore(),
		metrics: metrics.New(nil),
		conns:   make(map[domain.UserID]*coretest.Conn),
	}
	f.engine = NewEngine(f.reg, f.out, WithHistory(f.history, 0), WithMetrics(f.metrics))
	for _, u := range users {
		c := coretest.NewConn("conn-" + string(u))
		f.reg.Attach(c)
		_, err := f.reg.Register(u, c.ID())
		require.NoError(t, err)
		f.conns[u] = c
	}
	return f
}

func (f *fixture) calls(t *testing.T, user domain.UserID) []domain.CallRecord {
	t.Helper()
	f.engine.Wait()
	recs, err := f.history.ListCalls(context.Background(), user, 0)
	require.NoError(t, err)
	return recs
}

func TestInitiateRingsCallee(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))

	got := f.conns["bob"].OfType(core.EvIncomingCall)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UserID("alice"), got[0].From)

	a, ok := f.engine.Get("bob")
	require.True(t, ok)
	assert.Equal(t, domain.CallRinging, a.Phase)
	assert.Equal(t, 1, f.engine.Active())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveCalls))
}

func TestInitiateUnreachable(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	require.ErrorIs(t, f.engine.Initiate(ctx, "alice", "carol"), ErrUnreachable)
	require.ErrorIs(t, f.engine.Initiate(ctx, "alice", "alice"), ErrUnreachable)

	assert.Equal(t, 0, f.engine.Active())
	assert.Empty(t, f.calls(t, "alice"))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CallOutcomes.WithLabelValues("unreachable")))
}

func TestInitiateBusy(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.ErrorIs(t, f.engine.Initiate(ctx, "carol", "bob"), ErrBusy)
	require.ErrorIs(t, f.engine.Initiate(ctx, "alice", "carol"), ErrBusy)

	assert.Empty(t, f.conns["carol"].OfType(core.EvIncomingCall))
	assert.Equal(t, 1, f.engine.Active())
}

func TestAcceptRelayEnd(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.NoError(t, f.engine.Accept(ctx, "bob", "alice"))
	require.Len(t, f.conns["alice"].OfType(core.EvCallAccepted), 1)

	offer := json.RawMessage(`{"sdp":"v=0","type":"offer"}`)
	require.NoError(t, f.engine.Relay(ctx, core.EvOffer, "alice", "bob", offer))
	got := f.conns["bob"].OfType(core.EvOffer)
	require.Len(t, got, 1)
	assert.JSONEq(t, string(offer), string(got[0].Payload))
	assert.Equal(t, domain.UserID("alice"), got[0].From)

	require.NoError(t, f.engine.Relay(ctx, core.EvAnswer, "bob", "alice", json.RawMessage(`{"sdp":"x"}`)))
	require.Len(t, f.conns["alice"].OfType(core.EvAnswer), 1)

	require.NoError(t, f.engine.End(ctx, "alice", "bob"))
	ended := f.conns["bob"].OfType(core.EvCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, domain.UserID("alice"), ended[0].From)
	assert.Empty(t, f.conns["alice"].OfType(core.EvCallEnded))

	recs := f.calls(t, "bob")
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CallStatusEnded, recs[0].Status)
	assert.Equal(t, 0, f.engine.Active())
}

func TestDeclineNotifiesCaller(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.NoError(t, f.engine.Decline(ctx, "bob", "alice"))

	got := f.conns["alice"].OfType(core.EvCallDeclined)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UserID("bob"), got[0].From)

	// Declined attempts cannot be accepted afterwards.
	require.ErrorIs(t, f.engine.Accept(ctx, "bob", "alice"), ErrInvalidTransition)

	recs := f.calls(t, "alice")
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CallStatusDeclined, recs[0].Status)
}

func TestInvalidTransitionsAreIgnored(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	// Nothing ringing yet.
	require.ErrorIs(t, f.engine.Accept(ctx, "bob", "alice"), ErrInvalidTransition)
	require.ErrorIs(t, f.engine.End(ctx, "alice", "bob"), ErrInvalidTransition)
	require.ErrorIs(t, f.engine.Relay(ctx, core.EvOffer, "alice", "bob", nil), ErrInvalidTransition)

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	// Only the callee may accept, and only from its caller.
	require.ErrorIs(t, f.engine.Accept(ctx, "alice", "bob"), ErrInvalidTransition)
	require.ErrorIs(t, f.engine.Accept(ctx, "bob", "carol"), ErrInvalidTransition)
	// Third parties cannot inject negotiation.
	require.ErrorIs(t, f.engine.Relay(ctx, core.EvICECandidate, "carol", "bob", nil), ErrInvalidTransition)
	require.ErrorIs(t, f.engine.Relay(ctx, core.EvPing, "alice", "bob", nil), ErrInvalidTransition)

	assert.Empty(t, f.conns["alice"].Events())
	assert.Len(t, f.conns["bob"].Events(), 1)
	assert.Empty(t, f.conns["carol"].Events())
}

func TestEndTwiceNotifiesOnce(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.NoError(t, f.engine.End(ctx, "alice", "bob"))
	require.ErrorIs(t, f.engine.End(ctx, "alice", "bob"), ErrInvalidTransition)
	require.ErrorIs(t, f.engine.End(ctx, "bob", "alice"), ErrInvalidTransition)

	assert.Len(t, f.conns["bob"].OfType(core.EvCallEnded), 1)
	recs := f.calls(t, "alice")
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CallStatusMissed, recs[0].Status)
}

func TestConcurrentEndsTerminateOnce(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.NoError(t, f.engine.Accept(ctx, "bob", "alice"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = f.engine.End(ctx, "alice", "bob") }()
		go func() { defer wg.Done(); _ = f.engine.End(ctx, "bob", "alice") }()
	}
	wg.Wait()

	total := len(f.conns["alice"].OfType(core.EvCallEnded)) + len(f.conns["bob"].OfType(core.EvCallEnded))
	assert.Equal(t, 1, total)
	assert.Len(t, f.calls(t, "alice"), 1)
	assert.Equal(t, 0, f.engine.Active())
}

func TestDisconnectEndsCall(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.NoError(t, f.engine.Accept(ctx, "bob", "alice"))

	assert.True(t, f.engine.Disconnect(ctx, "alice"))
	assert.False(t, f.engine.Disconnect(ctx, "alice"))

	got := f.conns["bob"].OfType(core.EvCallEnded)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UserID("alice"), got[0].From)

	_, ok := f.engine.Get("bob")
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallOutcomes.WithLabelValues("ended")))
}

func TestFailedRingTerminatesAttempt(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	f.conns["bob"].FailWith(core.ErrBackpressure)

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))

	assert.Equal(t, 0, f.engine.Active())
	got := f.conns["alice"].OfType(core.EvCallEnded)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UserID("bob"), got[0].From)
	assert.Equal(t, 1, f.out.Failed())
}

func TestFailedRelayEndsCallForSender(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.NoError(t, f.engine.Accept(ctx, "bob", "alice"))
	f.conns["bob"].Close()

	require.NoError(t, f.engine.Relay(ctx, core.EvICECandidate, "alice", "bob", json.RawMessage(`{}`)))
	assert.Len(t, f.conns["alice"].OfType(core.EvCallEnded), 1)
	assert.Equal(t, 0, f.engine.Active())
}

type slowHistory struct {
	*store.InMemoryStore
	release chan struct{}
}

func (s *slowHistory) RecordCall(ctx context.Context, rec domain.CallRecord) error {
	<-s.release
	return s.InMemoryStore.RecordCall(ctx, rec)
}

func TestSlowHistoryDoesNotDelayCallEnded(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	slow := &slowHistory{InMemoryStore: f.history, release: make(chan struct{})}
	f.engine = NewEngine(f.reg, f.out, WithHistory(slow, time.Minute))
	ctx := context.Background()

	require.NoError(t, f.engine.Initiate(ctx, "alice", "bob"))
	require.NoError(t, f.engine.Accept(ctx, "bob", "alice"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.engine.Disconnect(ctx, "alice")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect blocked on history write")
	}
	assert.Len(t, f.conns["bob"].OfType(core.EvCallEnded), 1)

	pending, err := f.history.ListCalls(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	close(slow.release)
	recs := f.calls(t, "alice")
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CallStatusEnded, recs[0].Status)
}

package app

import (
	"context"
	"testing"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/core/coretest"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomGate(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	require.NoError(t, st.AddMember(ctx, domain.NewMember("r1", "alice", domain.RoleMember)))

	gate := &RoomGate{Members: st}
	require.NoError(t, gate.Authorize(ctx, "alice", "r1"))
	require.ErrorIs(t, gate.Authorize(ctx, "bob", "r1"), ErrForbidden)
	require.ErrorIs(t, gate.Authorize(ctx, "alice", "unknown"), ErrForbidden)

	open := &RoomGate{Open: true}
	require.NoError(t, open.Authorize(ctx, "bob", "anything"))
}

func TestPolicies(t *testing.T) {
	c := coretest.NewConn("c")
	assert.Equal(t, Disconnect, SimplePolicy{}.OnSendFailure(c, core.ErrBackpressure))
	assert.Equal(t, NoAction, TolerantPolicy{}.OnSendFailure(c, core.ErrBackpressure))
	assert.Equal(t, Disconnect, TolerantPolicy{}.OnSendFailure(c, core.ErrConnClosed))
}

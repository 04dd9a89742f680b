package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/relay/internal/core/coretest"
	"github.com/dkeye/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry()
	c1 := coretest.NewConn("c1")
	r.Attach(c1)

	_, ok := r.Lookup("alice")
	assert.False(t, ok)

	displaced, err := r.Register("alice", c1.ID())
	require.NoError(t, err)
	assert.Nil(t, displaced)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, c1.ID(), got.ID())
	assert.Equal(t, []domain.UserID{"alice"}, r.Snapshot())

	_, err = r.Register("bob", "missing")
	require.ErrorIs(t, err, ErrNotAttached)
}

func TestRegistryOverwriteAndStaleDisconnect(t *testing.T) {
	r := NewRegistry()
	old, fresh := coretest.NewConn("old"), coretest.NewConn("new")
	r.Attach(old)
	r.Attach(fresh)

	_, err := r.Register("alice", old.ID())
	require.NoError(t, err)
	displaced, err := r.Register("alice", fresh.ID())
	require.NoError(t, err)
	require.NotNil(t, displaced)
	assert.Equal(t, old.ID(), displaced.ID())

	// The old connection going away must not remove the newer mapping.
	_, user, current, ok := r.Detach(old.ID())
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), user)
	assert.False(t, current)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, fresh.ID(), got.ID())

	_, _, current, ok = r.Detach(fresh.ID())
	require.True(t, ok)
	assert.True(t, current)
	_, ok = r.Lookup("alice")
	assert.False(t, ok)

	_, _, _, ok = r.Detach(fresh.ID())
	assert.False(t, ok)
}

func TestRegistryCurrent(t *testing.T) {
	r := NewRegistry()
	old, fresh := coretest.NewConn("old"), coretest.NewConn("new")
	r.Attach(old)
	r.Attach(fresh)

	_, ok := r.Current(old.ID())
	assert.False(t, ok, "unregistered")

	_, err := r.Register("alice", old.ID())
	require.NoError(t, err)
	user, ok := r.Current(old.ID())
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), user)

	_, err = r.Register("alice", fresh.ID())
	require.NoError(t, err)
	_, ok = r.Current(old.ID())
	assert.False(t, ok, "superseded")
	user, ok = r.UserOf(old.ID())
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), user)

	_, ok = r.Current(fresh.ID())
	assert.True(t, ok)
	r.Detach(fresh.ID())
	_, ok = r.Current(fresh.ID())
	assert.False(t, ok)
}

func TestRegistryUnregisterGuard(t *testing.T) {
	r := NewRegistry()
	a, b := coretest.NewConn("a"), coretest.NewConn("b")
	r.Attach(a)
	r.Attach(b)
	_, _ = r.Register("alice", a.ID())
	_, _ = r.Register("alice", b.ID())

	_, removed := r.Unregister(a.ID())
	assert.False(t, removed)
	user, removed := r.Unregister(b.ID())
	assert.True(t, removed)
	assert.Equal(t, domain.UserID("alice"), user)
	assert.Empty(t, r.Snapshot())

	// Still attached, still knows who it was.
	u, ok := r.UserOf(a.ID())
	assert.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), u)
	conns, users := r.Counts()
	assert.Equal(t, 2, conns)
	assert.Equal(t, 0, users)
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := coretest.NewConn(fmt.Sprintf("c%d", i))
			r.Attach(c)
			user := domain.UserID(fmt.Sprintf("u%d", i%10))
			_, _ = r.Register(user, c.ID())
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Detach(c.ID())
			}
		}(i)
	}
	wg.Wait()

	// Every user still online must resolve to an attached connection.
	for _, u := range r.Snapshot() {
		c, ok := r.Lookup(u)
		require.True(t, ok)
		owner, ok := r.UserOf(c.ID())
		require.True(t, ok)
		assert.Equal(t, u, owner)
	}
}

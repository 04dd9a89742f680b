package app

import (
	"testing"

	"github.com/dkeye/relay/internal/core/coretest"
	"github.com/dkeye/relay/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestMembershipJoinLeave(t *testing.T) {
	m := NewMembership()
	a, b := coretest.NewConn("a"), coretest.NewConn("b")

	assert.True(t, m.Join(a, "r1"))
	assert.False(t, m.Join(a, "r1"))
	assert.True(t, m.Join(b, "r1"))
	assert.True(t, m.Join(a, "r2"))

	assert.Len(t, m.MembersOf("r1"), 2)
	assert.Equal(t, []domain.RoomID{"r1", "r2"}, m.RoomsOf(a.ID()))
	assert.True(t, m.IsMember(b.ID(), "r1"))
	assert.False(t, m.IsMember(b.ID(), "r2"))

	assert.True(t, m.Leave(b.ID(), "r1"))
	assert.False(t, m.Leave(b.ID(), "r1"))
	assert.Equal(t, 1, m.Count("r1"))
	assert.Equal(t, []RoomInfo{{Room: "r1", Connections: 1}, {Room: "r2", Connections: 1}}, m.List())
}

func TestMembershipRemoveConnection(t *testing.T) {
	m := NewMembership()
	a, b := coretest.NewConn("a"), coretest.NewConn("b")
	m.Join(a, "r1")
	m.Join(a, "r2")
	m.Join(b, "r2")

	left := m.RemoveConnection(a.ID())
	assert.ElementsMatch(t, []domain.RoomID{"r1", "r2"}, left)
	assert.Empty(t, m.MembersOf("r1"))
	assert.Len(t, m.MembersOf("r2"), 1)
	assert.Empty(t, m.RoomsOf(a.ID()))
	assert.Empty(t, m.RemoveConnection(a.ID()))
}

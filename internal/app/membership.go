package app

import (
	"sort"
	"sync"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Membership tracks which connections currently listen to which rooms.
// It performs no authorization; callers gate joins before calling Join.
type Membership struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]map[core.ConnID]core.Connection
	byConn map[core.ConnID]map[domain.RoomID]struct{}
}

type RoomInfo struct {
	Room        domain.RoomID `json:"room"`
	Connections int           `json:"connections"`
}

func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[domain.RoomID]map[core.ConnID]core.Connection),
		byConn: make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join is idempotent; it reports whether the connection was newly added.
func (m *Membership) Join(conn core.Connection, room domain.RoomID) bool {
	id := conn.ID()
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.rooms[room]
	if !ok {
		set = make(map[core.ConnID]core.Connection)
		m.rooms[room] = set
	}
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = conn

	joined, ok := m.byConn[id]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		m.byConn[id] = joined
	}
	joined[room] = struct{}{}
	log.Info().Str("module", "app.membership").Str("conn", string(id)).Str("room", string(room)).Msg("joined room")
	return true
}

// Leave is idempotent; it reports whether the connection was a member.
func (m *Membership) Leave(id core.ConnID, room domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.removeLocked(id, room) {
		return false
	}
	log.Info().Str("module", "app.membership").Str("conn", string(id)).Str("room", string(room)).Msg("left room")
	return true
}

// RemoveConnection purges id from every room and returns the rooms it left.
func (m *Membership) RemoveConnection(id core.ConnID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined := m.byConn[id]
	out := make([]domain.RoomID, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	for _, room := range out {
		m.removeLocked(id, room)
	}
	delete(m.byConn, id)
	if len(out) > 0 {
		log.Info().Str("module", "app.membership").Str("conn", string(id)).Int("rooms", len(out)).Msg("removed connection from rooms")
	}
	return out
}

func (m *Membership) removeLocked(id core.ConnID, room domain.RoomID) bool {
	set, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.rooms, room)
	}
	if joined, ok := m.byConn[id]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.byConn, id)
		}
	}
	return true
}

// MembersOf returns a snapshot of the room's connections.
func (m *Membership) MembersOf(room domain.RoomID) []core.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.rooms[room]
	out := make([]core.Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (m *Membership) IsMember(id core.ConnID, room domain.RoomID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][id]
	return ok
}

func (m *Membership) RoomsOf(id core.ConnID) []domain.RoomID {
	m.mu.RLock()
	out := make([]domain.RoomID, 0, len(m.byConn[id]))
	for room := range m.byConn[id] {
		out = append(out, room)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Membership) Count(room domain.RoomID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}

func (m *Membership) List() []RoomInfo {
	m.mu.RLock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for room, set := range m.rooms {
		out = append(out, RoomInfo{Room: room, Connections: len(set)})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

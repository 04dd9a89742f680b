package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotAttached = errors.New("connection not attached")

type connEntry struct {
	conn core.Connection
	// user is the identity the connection registered as. It survives being
	// superseded so the connection can still act in rooms as that user.
	user domain.UserID
}

// Registry is the authoritative "who is online" map. It knows every open
// connection and, per user identity, the single connection that is current.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
	users map[domain.UserID]core.ConnID
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnID]*connEntry),
		users: make(map[domain.UserID]core.ConnID),
	}
}

// Attach records a freshly opened, not yet registered connection.
func (r *Registry) Attach(conn core.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = &connEntry{conn: conn}
	log.Debug().Str("module", "app.registry").Str("conn", string(conn.ID())).Msg("attached connection")
}

// Register maps user to the connection, overwriting any earlier mapping.
// It returns the connection that was displaced, if any.
func (r *Registry) Register(user domain.UserID, id core.ConnID) (core.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, ErrNotAttached
	}

	var displaced core.Connection
	if prev, ok := r.users[user]; ok && prev != id {
		if pe, ok := r.conns[prev]; ok {
			displaced = pe.conn
		}
	}
	if e.user != "" && e.user != user && r.users[e.user] == id {
		delete(r.users, e.user)
	}

	e.user = user
	r.users[user] = id
	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("conn", string(id)).Bool("displaced", displaced != nil).Msg("registered")
	return displaced, nil
}

// Lookup resolves a user to its current connection.
func (r *Registry) Lookup(user domain.UserID) (core.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[user]
	if !ok {
		return nil, false
	}
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Unregister drops the user mapping only while it still points at id, so a
// late disconnect of an old connection cannot clobber a newer registration.
func (r *Registry) Unregister(id core.ConnID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(id)
}

func (r *Registry) unregisterLocked(id core.ConnID) (domain.UserID, bool) {
	e, ok := r.conns[id]
	if !ok || e.user == "" {
		return "", false
	}
	if r.users[e.user] != id {
		return e.user, false
	}
	delete(r.users, e.user)
	log.Info().Str("module", "app.registry").Str("user", string(e.user)).Str("conn", string(id)).Msg("unregistered")
	return e.user, true
}

// Detach forgets the connection entirely. current reports whether it was
// still the user's registered connection. ok is false when id was unknown,
// which makes repeated detaches harmless.
func (r *Registry) Detach(id core.ConnID) (conn core.Connection, user domain.UserID, current bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, "", false, false
	}
	user, current = r.unregisterLocked(id)
	delete(r.conns, id)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("detached connection")
	return e.conn, user, current, true
}

// UserOf returns the identity the connection registered as.
func (r *Registry) UserOf(id core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.user == "" {
		return "", false
	}
	return e.user, true
}

// Current returns the connection's identity only while it is still that
// user's registered connection.
func (r *Registry) Current(id core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.user == "" || r.users[e.user] != id {
		return "", false
	}
	return e.user, true
}

// Snapshot returns the online user identities, sorted.
func (r *Registry) Snapshot() []domain.UserID {
	r.mu.RLock()
	out := make([]domain.UserID, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Connections returns every open connection, registered or not.
func (r *Registry) Connections() []core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Connection, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn)
	}
	return out
}

func (r *Registry) Counts() (conns, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.users)
}

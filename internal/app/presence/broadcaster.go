// Package presence pushes the online-user set to every open connection.
package presence

import (
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Source is the registry view presence needs.
type Source interface {
	Snapshot() []domain.UserID
	Connections() []core.Connection
}

type Broadcaster struct {
	src Source
	out core.Outbox
}

func NewBroadcaster(src Source, out core.Outbox) *Broadcaster {
	return &Broadcaster{src: src, out: out}
}

// Publish is best effort. A connection that closes between the snapshot and
// the send misses this round and is corrected by the next one.
func (b *Broadcaster) Publish() int {
	users := b.src.Snapshot()
	conns := b.src.Connections()
	n := b.out.Broadcast(conns, Event(users))
	log.Debug().Str("module", "app.presence").Int("online", len(users)).Int("delivered", n).Msg("presence published")
	return n
}

// Event builds the presence-snapshot envelope. An empty set still encodes as
// "users":[].
func Event(users []domain.UserID) core.Event {
	if users == nil {
		users = []domain.UserID{}
	}
	return core.Event{Type: core.EvPresence, Users: users}
}

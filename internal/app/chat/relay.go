// Package chat posts group messages and fans them out to the room.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/dkeye/relay/internal/store"
	"github.com/rs/zerolog/log"
)

var ErrPersistence = errors.New("message could not be stored")

// Members resolves the connections currently listening to a room.
type Members interface {
	MembersOf(room domain.RoomID) []core.Connection
}

type Relay struct {
	store   store.MessageStore
	members Members
	out     core.Outbox
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewRelay(ms store.MessageStore, members Members, out core.Outbox, m *metrics.Metrics, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Relay{store: ms, members: members, out: out, metrics: m, timeout: timeout}
}

// PostAndBroadcast validates and stores the message, then pushes the stored
// copy to every connection in the room, the sender's included. It returns the
// stored message and how many connections took it. Nothing is broadcast when
// validation or storage fails.
func (r *Relay) PostAndBroadcast(ctx context.Context, room domain.RoomID, sender domain.UserID, ct domain.ContentType, content, mediaURL string) (*domain.GroupMessage, int, error) {
	msg, err := domain.NewGroupMessage(room, sender, ct, content, mediaURL)
	if err != nil {
		r.count("invalid")
		return nil, 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	saved, err := r.store.Save(ctx, *msg)
	if err != nil {
		r.count("store_failed")
		log.Error().Err(err).Str("module", "app.chat").Str("room", string(room)).Str("sender", string(sender)).Msg("save message")
		return nil, 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	n := r.out.Broadcast(r.members.MembersOf(room), core.Event{
		Type:    core.EvNewGroupMessage,
		Room:    room,
		Message: &saved,
	})
	r.count("delivered")
	log.Debug().Str("module", "app.chat").Str("room", string(room)).Str("id", saved.ID).Int("delivered", n).Msg("message broadcast")
	return &saved, n, nil
}

// History returns the latest stored messages of a room, oldest first.
func (r *Relay) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.GroupMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	msgs, err := r.store.ListMessages(ctx, room, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (r *Relay) count(result string) {
	if r.metrics != nil {
		r.metrics.GroupMessages.WithLabelValues(result).Inc()
	}
}

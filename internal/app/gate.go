package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/store"
	"github.com/rs/zerolog/log"
)

var ErrForbidden = errors.New("not a member of this room")

// RoomGate checks the durable membership record before a connection may
// subscribe to a room.
type RoomGate struct {
	Members store.MembershipStore
	// Open lets anyone join any room.
	Open    bool
	Timeout time.Duration
}

func (g *RoomGate) Authorize(ctx context.Context, user domain.UserID, room domain.RoomID) error {
	if g == nil || g.Open {
		return nil
	}
	if g.Members == nil {
		return ErrForbidden
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	members, err := g.Members.ListMembers(ctx, room)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if m.User == user {
			return nil
		}
	}
	log.Info().Str("module", "app.gate").Str("user", string(user)).Str("room", string(room)).Msg("join denied")
	return ErrForbidden
}

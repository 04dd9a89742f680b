package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/store"
	"github.com/rs/zerolog/log"
)

// Join subscribes conn to room after the gate has approved its user.
func (o *Orchestrator) Join(ctx context.Context, conn core.Connection, room domain.RoomID) error {
	user, ok := o.Identity(conn)
	if !ok {
		return ErrNotRegistered
	}
	if err := o.Gate.Authorize(ctx, user, room); err != nil {
		return err
	}

	o.Rooms.Join(conn, room)
	// The connection may have gone away while the gate was consulting the store.
	if _, ok := o.Registry.UserOf(conn.ID()); !ok {
		o.Rooms.Leave(conn.ID(), room)
		return ErrNotRegistered
	}
	o.Deliver(conn, core.Event{Type: core.EvRoomJoined, Room: room, Rooms: o.Rooms.RoomsOf(conn.ID())})
	return nil
}

func (o *Orchestrator) Leave(conn core.Connection, room domain.RoomID) {
	o.Rooms.Leave(conn.ID(), room)
	o.Deliver(conn, core.Event{Type: core.EvRoomLeft, Room: room, Rooms: o.Rooms.RoomsOf(conn.ID())})
}

// PostMessage stores a message from conn and fans it out to room. Only
// connections that joined the room may post.
func (o *Orchestrator) PostMessage(ctx context.Context, conn core.Connection, room domain.RoomID, ct domain.ContentType, content, mediaURL string) (*domain.GroupMessage, error) {
	user, ok := o.Identity(conn)
	if !ok {
		return nil, ErrNotRegistered
	}
	if !o.Rooms.IsMember(conn.ID(), room) {
		return nil, ErrNotInRoom
	}
	msg, _, err := o.Chat.PostAndBroadcast(ctx, room, user, ct, content, mediaURL)
	return msg, err
}

// AddMember records user as allowed into room.
func (o *Orchestrator) AddMember(ctx context.Context, room domain.RoomID, user domain.UserID, role domain.Role) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.Store.AddMember(ctx, domain.NewMember(room, user, role)); err != nil {
		return err
	}
	log.Info().Str("module", "app.orch").Str("room", string(room)).Str("user", string(user)).Msg("member added")
	return nil
}

// GrantMembership lets actor add user to room. The first grant on an empty
// room is open; after that only room admins may grant.
func (o *Orchestrator) GrantMembership(ctx context.Context, actor domain.UserID, room domain.RoomID, user domain.UserID, role domain.Role) error {
	if !o.Gate.Open {
		lctx, cancel := context.WithTimeout(ctx, o.timeout)
		members, err := o.Store.ListMembers(lctx, room)
		cancel()
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return fmt.Errorf("list members: %w", err)
		case !isAdmin(members, actor):
			return app.ErrForbidden
		}
	}
	return o.AddMember(ctx, room, user, role)
}

func isAdmin(members []domain.Member, user domain.UserID) bool {
	for _, m := range members {
		if m.User == user && m.Role == domain.RoleAdmin {
			return true
		}
	}
	return false
}

// EvictRoom drops every live subscription to room. Connections stay open.
func (o *Orchestrator) EvictRoom(room domain.RoomID) int {
	conns := o.Rooms.MembersOf(room)
	for _, c := range conns {
		o.Leave(c, room)
	}
	return len(conns)
}

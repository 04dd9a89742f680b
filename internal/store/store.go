// Package store holds the durable side of the relay: group messages,
// room membership records and call history.
package store

//go:generate mockgen -destination=mocks/store_mock.go -package=mocks github.com/dkeye/relay/internal/store Store

import (
	"context"
	"errors"

	"github.com/dkeye/relay/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

const DefaultListLimit = 50

type MessageStore interface {
	// Save persists msg and returns it with server-assigned ID and CreatedAt.
	Save(ctx context.Context, msg domain.GroupMessage) (domain.GroupMessage, error)
	// ListMessages returns the most recent messages of a room, oldest first.
	ListMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.GroupMessage, error)
}

type MembershipStore interface {
	ListMembers(ctx context.Context, room domain.RoomID) ([]domain.Member, error)
	AddMember(ctx context.Context, m domain.Member) error
}

type CallStore interface {
	RecordCall(ctx context.Context, rec domain.CallRecord) error
	// ListCalls returns calls the user took part in, newest first.
	ListCalls(ctx context.Context, user domain.UserID, limit int) ([]domain.CallRecord, error)
}

type Store interface {
	MessageStore
	MembershipStore
	CallStore
	Close() error
}

func normLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/relay/internal/domain"
	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[domain.RoomID][]domain.GroupMessage
	members  map[domain.RoomID]map[domain.UserID]domain.Member
	calls    []domain.CallRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages: make(map[domain.RoomID][]domain.GroupMessage),
		members:  make(map[domain.RoomID]map[domain.UserID]domain.Member),
	}
}

func (s *InMemoryStore) Save(ctx context.Context, msg domain.GroupMessage) (domain.GroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupMessage{}, err
	}
	if msg.Room == "" || msg.Sender == "" {
		return domain.GroupMessage{}, ErrInvalidRecord
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.Room] = append(s.messages[msg.Room], msg)
	return msg, nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.GroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = normLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[room]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.GroupMessage, len(all))
	copy(out, all)
	return out, nil
}

func (s *InMemoryStore) ListMembers(ctx context.Context, room domain.RoomID) ([]domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.members[room]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]domain.Member, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (s *InMemoryStore) AddMember(ctx context.Context, m domain.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Room == "" || m.User == "" {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[m.Room]
	if !ok {
		set = make(map[domain.UserID]domain.Member)
		s.members[m.Room] = set
	}
	set[m.User] = m
	return nil
}

func (s *InMemoryStore) RecordCall(ctx context.Context, rec domain.CallRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Caller == "" || rec.Callee == "" {
		return ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, rec)
	return nil
}

func (s *InMemoryStore) ListCalls(ctx context.Context, user domain.UserID, limit int) ([]domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = normLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CallRecord, 0)
	for i := len(s.calls) - 1; i >= 0 && len(out) < limit; i-- {
		c := s.calls[i]
		if c.Caller == user || c.Callee == user {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

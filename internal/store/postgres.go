package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/store/model"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.AutoMigrate(&model.GroupMessage{}, &model.RoomMember{}, &model.Call{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, msg domain.GroupMessage) (domain.GroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupMessage{}, err
	}
	if msg.Room == "" || msg.Sender == "" {
		return domain.GroupMessage{}, ErrInvalidRecord
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Create(toModelMessage(msg)).Error; err != nil {
		return domain.GroupMessage{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.GroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.GroupMessage
	err := s.db.WithContext(ctx).
		Where("room_id = ?", string(room)).
		Order("created_at DESC").
		Limit(normLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]domain.GroupMessage, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = toDomainMessage(&rows[i])
	}
	return out, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, room domain.RoomID) ([]domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.RoomMember
	if err := s.db.WithContext(ctx).Where("room_id = ?", string(room)).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	out := make([]domain.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Member{
			Room:     domain.RoomID(r.RoomID),
			User:     domain.UserID(r.UserID),
			Role:     domain.Role(r.Role),
			JoinedAt: r.JoinedAt,
		})
	}
	return out, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, m domain.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Room == "" || m.User == "" {
		return ErrInvalidRecord
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}

	row := model.RoomMember{
		RoomID:   string(m.Room),
		UserID:   string(m.User),
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordCall(ctx context.Context, rec domain.CallRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Caller == "" || rec.Callee == "" {
		return ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	row := model.Call{
		ID:        rec.ID,
		CallerID:  string(rec.Caller),
		CalleeID:  string(rec.Callee),
		Status:    string(rec.Status),
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, user domain.UserID, limit int) ([]domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.Call
	err := s.db.WithContext(ctx).
		Where("caller_id = ? OR callee_id = ?", string(user), string(user)).
		Order("ended_at DESC").
		Limit(normLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	out := make([]domain.CallRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CallRecord{
			ID:        r.ID,
			Caller:    domain.UserID(r.CallerID),
			Callee:    domain.UserID(r.CalleeID),
			Status:    domain.CallStatus(r.Status),
			StartedAt: r.StartedAt,
			EndedAt:   r.EndedAt,
		})
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModelMessage(m domain.GroupMessage) *model.GroupMessage {
	return &model.GroupMessage{
		ID:          m.ID,
		RoomID:      string(m.Room),
		SenderID:    string(m.Sender),
		ContentType: string(m.ContentType),
		Content:     m.Content,
		MediaURL:    m.MediaURL,
		CreatedAt:   m.CreatedAt,
	}
}

func toDomainMessage(m *model.GroupMessage) domain.GroupMessage {
	return domain.GroupMessage{
		ID:          m.ID,
		Room:        domain.RoomID(m.RoomID),
		Sender:      domain.UserID(m.SenderID),
		ContentType: domain.ContentType(m.ContentType),
		Content:     m.Content,
		MediaURL:    m.MediaURL,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

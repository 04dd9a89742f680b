package model

import "time"

type GroupMessage struct {
	ID          string    `gorm:"size:36;primaryKey"`
	RoomID      string    `gorm:"size:64;index:idx_group_messages_room;not null"`
	SenderID    string    `gorm:"size:64;not null"`
	ContentType string    `gorm:"size:16;not null"`
	Content     string    `gorm:"type:text"`
	MediaURL    string    `gorm:"size:2048"`
	CreatedAt   time.Time `gorm:"index:idx_group_messages_room;not null"`
}

type RoomMember struct {
	RoomID   string    `gorm:"size:64;primaryKey"`
	UserID   string    `gorm:"size:64;primaryKey"`
	Role     string    `gorm:"size:16;not null"`
	JoinedAt time.Time `gorm:"not null"`
}

type Call struct {
	ID        string    `gorm:"size:36;primaryKey"`
	CallerID  string    `gorm:"size:64;index;not null"`
	CalleeID  string    `gorm:"size:64;index;not null"`
	Status    string    `gorm:"size:16;not null"`
	StartedAt time.Time `gorm:"not null"`
	EndedAt   time.Time `gorm:"index;not null"`
}

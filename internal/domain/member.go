package domain

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member is the durable record of who may join a room.
// It says nothing about who is currently listening.
type Member struct {
	Room     RoomID    `json:"room"`
	User     UserID    `json:"user"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(room RoomID, user UserID, role Role) Member {
	if role == "" {
		role = RoleMember
	}
	return Member{Room: room, User: user, Role: role, JoinedAt: time.Now().UTC()}
}

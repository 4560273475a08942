package model

import (
	"strconv"
	"time"
)

// RoomKind distinguishes the two room variants. Public rooms are addressed
// by their numeric id, private rooms by their letter code.
type RoomKind string

const (
	RoomKindPublic  RoomKind = "public"
	RoomKindPrivate RoomKind = "private"
)

// RoomRef addresses a room without caring which variant it is. Two refs with
// the same Value but different kinds are distinct rooms.
type RoomRef struct {
	Kind  RoomKind
	Value string
}

// ParseRoomRef applies the addressing convention used throughout the wire
// protocol: an all-numeric room string is a public room id, anything else is
// a private room code.
func ParseRoomRef(room string) RoomRef {
	if isNumeric(room) {
		return RoomRef{Kind: RoomKindPublic, Value: room}
	}
	return RoomRef{Kind: RoomKindPrivate, Value: room}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// User is a registered account. Display names inside private rooms are
// free-form and not tied to a User.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:80;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:200;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicRoom is a durable named room created by an authenticated user.
type PublicRoom struct {
	ID          uint      `gorm:"primaryKey" json:"room_id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:255;not null" json:"description"`
	OwnerID     uint      `gorm:"not null" json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ref returns the wire-level address of the room (its id in decimal).
func (r *PublicRoom) Ref() RoomRef {
	return RoomRef{Kind: RoomKindPublic, Value: strconv.FormatUint(uint64(r.ID), 10)}
}

// PrivateRoom is an ephemeral code-addressed room. It has no owner and no
// name. Rooms that stay empty past their TTL are reaped to keep the code
// space from filling up.
type PrivateRoom struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Code      string    `gorm:"size:10;uniqueIndex;not null" json:"code"`
	CreatedAt time.Time `json:"-"`
}

// Ref returns the wire-level address of the room (its code).
func (r *PrivateRoom) Ref() RoomRef {
	return RoomRef{Kind: RoomKindPrivate, Value: r.Code}
}

// Message is one durable chat message. Ordering within a room is append
// order; Timestamp approximates it but is not strictly monotonic under
// concurrent writers.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RoomKind  RoomKind  `gorm:"size:10;column:room_type;index:idx_room" json:"room_type"`
	RoomID    string    `gorm:"size:100;index:idx_room" json:"room_id"`
	Sender    string    `gorm:"size:100" json:"sender"`
	Body      string    `gorm:"column:message;type:text" json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Room returns the ref this message was logged under.
func (m *Message) Room() RoomRef {
	return RoomRef{Kind: m.RoomKind, Value: m.RoomID}
}

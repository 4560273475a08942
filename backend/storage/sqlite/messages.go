package sqlite

import (
	"fmt"
	"time"

	"github.com/parley-chat/parley/backend/model"
)

// AppendMessage logs one chat message with a server-assigned timestamp.
// Presence notifications are never logged; callers only append user-authored
// messages.
func (s *Store) AppendMessage(room model.RoomRef, sender, body string) (*model.Message, error) {
	msg := model.Message{
		RoomKind:  room.Kind,
		RoomID:    room.Value,
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return &msg, nil
}

// RoomMessages returns a room's log in append order, for history replay.
func (s *Store) RoomMessages(room model.RoomRef) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.
		Where("room_type = ? AND room_id = ?", room.Kind, room.Value).
		Order("id").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load room messages: %w", err)
	}
	return msgs, nil
}

package sqlite

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/parley-chat/parley/backend/model"
)

const (
	// DefaultCodeLength and DefaultCodeAlphabet give ~19.8 bits of entropy
	// per private room, enough to keep generation collisions negligible.
	DefaultCodeLength   = 6
	DefaultCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	maxCodeAttempts = 100
)

// CreatePublicRoom inserts a new named room. The UNIQUE index on the name
// makes the uniqueness check atomic with the insert: under concurrent
// creations of the same name exactly one caller succeeds.
func (s *Store) CreatePublicRoom(name, description string, ownerID uint) (*model.PublicRoom, error) {
	room := model.PublicRoom{
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
	}
	if err := s.db.Create(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateRoomName
		}
		return nil, fmt.Errorf("failed to create public room: %w", err)
	}
	s.logger.Debug().Str("name", name).Uint("id", room.ID).Msg("public room created")
	return &room, nil
}

// CreatePrivateRoom generates a fresh code and inserts the room. A code
// collision shows up as a duplicate-key conflict and triggers regeneration;
// running out of attempts is a configuration error, not a per-request one.
func (s *Store) CreatePrivateRoom(length int, alphabet string) (*model.PrivateRoom, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := model.PrivateRoom{Code: generateCode(length, alphabet)}
		err := s.db.Create(&room).Error
		if err == nil {
			s.logger.Debug().Str("code", room.Code).Msg("private room created")
			return &room, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, fmt.Errorf("failed to create private room: %w", err)
	}
	return nil, ErrCodeSpaceExhausted
}

func generateCode(length int, alphabet string) string {
	code := make([]byte, length)
	for i := range code {
		code[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(code)
}

func (s *Store) FindPublicRoom(id uint) (*model.PublicRoom, error) {
	var room model.PublicRoom
	if err := s.db.First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find public room: %w", err)
	}
	return &room, nil
}

func (s *Store) FindPrivateRoom(code string) (*model.PrivateRoom, error) {
	var room model.PrivateRoom
	if err := s.db.First(&room, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find private room: %w", err)
	}
	return &room, nil
}

// ListPublicRooms returns all public rooms in creation order.
func (s *Store) ListPublicRooms() ([]model.PublicRoom, error) {
	var rooms []model.PublicRoom
	if err := s.db.Order("id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list public rooms: %w", err)
	}
	return rooms, nil
}

// ReapPrivateRooms deletes private rooms created before cutoff whose codes
// are not in the active set. The message log is append-only and untouched.
func (s *Store) ReapPrivateRooms(active []string, cutoff time.Time) (int64, error) {
	q := s.db.Where("created_at < ?", cutoff)
	if len(active) > 0 {
		q = q.Where("code NOT IN ?", active)
	}
	res := q.Delete(&model.PrivateRoom{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reap private rooms: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RoomExists resolves a wire-level room ref against the registry.
func (s *Store) RoomExists(ref model.RoomRef) error {
	switch ref.Kind {
	case model.RoomKindPublic:
		id, err := strconv.ParseUint(ref.Value, 10, 64)
		if err != nil {
			return ErrRoomNotFound
		}
		_, err = s.FindPublicRoom(uint(id))
		return err
	case model.RoomKindPrivate:
		_, err := s.FindPrivateRoom(ref.Value)
		return err
	}
	return ErrRoomNotFound
}

package sqlite

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parley-chat/parley/backend/model"
)

var (
	ErrRoomNotFound      = errors.New("room is not found")
	ErrDuplicateRoomName = errors.New("room name already exists")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrUserNotFound      = errors.New("user is not found")

	// ErrCodeSpaceExhausted means private room code generation ran out of
	// attempts. The configured code length/alphabet is too small for the
	// number of existing rooms.
	ErrCodeSpaceExhausted = errors.New("private room code space exhausted")
)

// Store is the durable layer: room registry, message log and user accounts
// in a single sqlite database.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

type Config struct {
	Path   string
	Logger *zerolog.Logger
}

func New(cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", cfg.Path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.AutoMigrate(
		&model.User{},
		&model.PublicRoom{},
		&model.PrivateRoom{},
		&model.Message{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "store").Logger(),
	}, nil
}

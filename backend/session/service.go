package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/backend/model"
)

var (
	ErrJoin     = errors.New("unable to join room")
	ErrNotBound = errors.New("connection is not bound to a room")
)

type (
	Registry interface {
		RoomExists(ref model.RoomRef) error
	}

	MessageLog interface {
		AppendMessage(room model.RoomRef, sender, body string) (*model.Message, error)
	}

	Broadcaster interface {
		Join(connID string, room model.RoomRef, wire model.Wire)
		Leave(connID string, room model.RoomRef)
		Send(ctx context.Context, room model.RoomRef, ev model.ServerEvent)
		SendAll(ctx context.Context, ev model.ServerEvent)
	}

	// Service orchestrates the per-connection room lifecycle: it owns the
	// connection bindings and drives the registry, broadcaster and message
	// log in response to connection events.
	Service struct {
		registry Registry
		log      MessageLog
		fanout   Broadcaster
		bindings *bindings
		logger   zerolog.Logger
	}

	Config struct {
		Registry    Registry
		MessageLog  MessageLog
		Broadcaster Broadcaster
		Logger      *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		registry: cfg.Registry,
		log:      cfg.MessageLog,
		fanout:   cfg.Broadcaster,
		bindings: newBindings(),
		logger:   cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// Join validates the room, binds the connection and announces the arrival to
// the whole room, the joiner included. Presence notifications are not
// persisted.
func (s *Service) Join(ctx context.Context, connID, room, displayName string, wire model.Wire) error {
	ref := model.ParseRoomRef(room)
	if err := s.registry.RoomExists(ref); err != nil {
		return errors.Join(ErrJoin, err)
	}

	s.bindings.bind(connID, ref, displayName)
	s.fanout.Join(connID, ref, wire)
	s.logger.Debug().
		Str("connID", connID).
		Str("room", ref.Value).
		Str("name", displayName).
		Msg("connection joined")

	s.fanout.Send(ctx, ref, model.ServerEvent{
		Event:    model.EventMessage,
		Sender:   "",
		Message:  displayName + " joined room",
		IsSystem: true,
	})
	return nil
}

// Leave removes the connection from its room and announces the departure to
// the remaining members. A leave on an unbound connection is a no-op.
func (s *Service) Leave(ctx context.Context, connID string) {
	bnd, ok := s.bindings.resolve(connID)
	if !ok {
		return
	}
	s.fanout.Leave(connID, bnd.Room)
	s.bindings.unbind(connID)
	s.logger.Debug().
		Str("connID", connID).
		Str("room", bnd.Room.Value).
		Msg("connection left")

	s.fanout.Send(ctx, bnd.Room, model.ServerEvent{
		Event:   model.EventMessage,
		Sender:  "",
		Message: bnd.DisplayName + " has left the chat",
	})
}

// Message persists a chat message and fans it out to the sender's room.
// Persistence happens before broadcast so a crash between the two steps
// cannot deliver a message that the durable log never saw. An append failure
// is retried once and logged; the message is still broadcast, since peers
// accepting it matters more than the log entry.
func (s *Service) Message(ctx context.Context, connID, body string) error {
	bnd, ok := s.bindings.resolve(connID)
	if !ok {
		s.logger.Warn().
			Str("connID", connID).
			Msg("message from unbound connection dropped")
		return ErrNotBound
	}

	if _, err := s.log.AppendMessage(bnd.Room, bnd.DisplayName, body); err != nil {
		_, retryErr := s.log.AppendMessage(bnd.Room, bnd.DisplayName, body)
		if retryErr != nil {
			s.logger.Error().Err(retryErr).
				Str("room", bnd.Room.Value).
				Str("sender", bnd.DisplayName).
				Msg("failed to persist message")
		}
	}

	s.fanout.Send(ctx, bnd.Room, model.ServerEvent{
		Event:   model.EventMessage,
		Sender:  bnd.DisplayName,
		Message: body,
	})
	return nil
}

// FileShare announces an uploaded file to every connected client, not just
// the uploader's room. The system-wide scope mirrors the upstream behavior
// this service replaced.
func (s *Service) FileShare(ctx context.Context, connID, username, fileURL string) {
	if fileURL == "" {
		return
	}
	name := username
	if name == "" {
		if bnd, ok := s.bindings.resolve(connID); ok {
			name = bnd.DisplayName
		}
	}
	if name == "" {
		name = "Anonymous"
	}
	s.fanout.SendAll(ctx, model.ServerEvent{
		Event:    model.EventReceiveFile,
		Username: name,
		FileURL:  fileURL,
	})
}

// Disconnect has the same effect as an explicit leave; it fires when the
// transport drops.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	s.Leave(ctx, connID)
}

package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/backend/model"
)

const (
	defaultSendTimeout = time.Second
)

// Broadcaster tracks the live membership of every room and fans events out
// to members. Membership is in-memory only and rebuilt from nothing on every
// process start; it is mutated exclusively through Join/Leave.
type Broadcaster struct {
	logger      zerolog.Logger
	mx          *sync.RWMutex
	rooms       map[model.RoomRef]map[string]model.Wire
	sendTimeout time.Duration
}

func New(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:      logger.With().Str("component", "fanout").Logger(),
		mx:          &sync.RWMutex{},
		rooms:       make(map[model.RoomRef]map[string]model.Wire),
		sendTimeout: defaultSendTimeout,
	}
}

// Join adds a connection to the room's membership set.
func (b *Broadcaster) Join(connID string, room model.RoomRef, wire model.Wire) {
	b.mx.Lock()
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]model.Wire)
		b.rooms[room] = members
	}
	members[connID] = wire
	b.mx.Unlock()

	b.logger.Debug().
		Str("connID", connID).
		Str("room", room.Value).
		Str("kind", string(room.Kind)).
		Msg("connection joined room")
}

// Leave removes a connection from the room's membership set. Unknown
// connections and rooms are ignored.
func (b *Broadcaster) Leave(connID string, room model.RoomRef) {
	b.mx.Lock()
	if members, ok := b.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
	b.mx.Unlock()

	b.logger.Debug().
		Str("connID", connID).
		Str("room", room.Value).
		Str("kind", string(room.Kind)).
		Msg("connection left room")
}

// ActiveRooms snapshots the refs of every room that currently has members.
func (b *Broadcaster) ActiveRooms() []model.RoomRef {
	b.mx.RLock()
	defer b.mx.RUnlock()
	refs := make([]model.RoomRef, 0, len(b.rooms))
	for ref := range b.rooms {
		refs = append(refs, ref)
	}
	return refs
}

// Send delivers an event to every current member of the room, the sender
// included. Delivery is best effort per member: a dead or slow member costs
// at most the send timeout and never fails delivery to the others.
func (b *Broadcaster) Send(ctx context.Context, room model.RoomRef, ev model.ServerEvent) {
	b.mx.RLock()
	wires := make([]model.Wire, 0, len(b.rooms[room]))
	for _, wire := range b.rooms[room] {
		wires = append(wires, wire)
	}
	b.mx.RUnlock()

	if len(wires) == 0 {
		b.logger.Debug().
			Str("room", room.Value).
			Str("event", ev.Event).
			Msg("broadcast did not reach anyone")
		return
	}
	b.deliver(ctx, wires, ev)
}

// SendAll delivers an event to every connection in every room. File share
// notifications use this scope.
func (b *Broadcaster) SendAll(ctx context.Context, ev model.ServerEvent) {
	b.mx.RLock()
	var wires []model.Wire
	seen := make(map[chan model.ServerEvent]struct{})
	for _, members := range b.rooms {
		for _, wire := range members {
			if _, ok := seen[wire.TX]; ok {
				continue
			}
			seen[wire.TX] = struct{}{}
			wires = append(wires, wire)
		}
	}
	b.mx.RUnlock()

	b.deliver(ctx, wires, ev)
}

func (b *Broadcaster) deliver(ctx context.Context, wires []model.Wire, ev model.ServerEvent) {
	for _, wire := range wires {
		if canceled := b.send(ctx, ev, wire.TX); canceled {
			return
		}
	}
}

func (b *Broadcaster) send(ctx context.Context, ev model.ServerEvent, tx chan<- model.ServerEvent) bool {
	t := time.NewTimer(b.sendTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		b.logger.Error().Str("event", ev.Event).Msg("dead member, event dropped")
	case tx <- ev:
	}
	return false
}

package session

import (
	"sync"

	"github.com/parley-chat/parley/backend/model"
)

// Binding is the association between a live connection and the room and
// display name it participates as. A connection holds at most one binding.
type Binding struct {
	Room        model.RoomRef
	DisplayName string
}

type bindings struct {
	mx sync.Mutex
	m  map[string]Binding
}

func newBindings() *bindings {
	return &bindings{
		m: make(map[string]Binding),
	}
}

// bind overwrites any prior binding. Emitting a leave for the prior room is
// the caller's job; no user flow rebinds without an explicit leave.
func (b *bindings) bind(connID string, room model.RoomRef, displayName string) {
	b.mx.Lock()
	b.m[connID] = Binding{Room: room, DisplayName: displayName}
	b.mx.Unlock()
}

func (b *bindings) resolve(connID string) (Binding, bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	bnd, ok := b.m[connID]
	return bnd, ok
}

// unbind is idempotent.
func (b *bindings) unbind(connID string) {
	b.mx.Lock()
	delete(b.m, connID)
	b.mx.Unlock()
}

package sqlite

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/backend/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := zerolog.Nop()
	store, err := New(Config{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: &logger,
	})
	require.NoError(t, err)
	return store
}

func TestCreatePublicRoomDuplicateName(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	room, err := store.CreatePublicRoom("general", "general chatter", 1)
	req.NoError(err)
	req.NotZero(room.ID)

	_, err = store.CreatePublicRoom("general", "another one", 2)
	req.ErrorIs(err, ErrDuplicateRoomName)

	rooms, err := store.ListPublicRooms()
	req.NoError(err)
	req.Len(rooms, 1)
	req.Equal("general", rooms[0].Name)
}

func TestCreatePublicRoomConcurrentDuplicates(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.CreatePublicRoom("general", "race", 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		req.ErrorIs(err, ErrDuplicateRoomName)
	}
	req.Equal(1, succeeded)
	rooms, err := store.ListPublicRooms()
	req.NoError(err)
	req.Len(rooms, 1)
}

func TestListPublicRoomsCreationOrder(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := store.CreatePublicRoom(name, "room "+name, 1)
		req.NoError(err)
	}
	rooms, err := store.ListPublicRooms()
	req.NoError(err)
	req.Len(rooms, 3)
	req.Equal("alpha", rooms[0].Name)
	req.Equal("beta", rooms[1].Name)
	req.Equal("gamma", rooms[2].Name)
}

func TestCreatePrivateRoomCodeShape(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		room, err := store.CreatePrivateRoom(DefaultCodeLength, DefaultCodeAlphabet)
		req.NoError(err)
		req.Len(room.Code, DefaultCodeLength)
		for _, r := range room.Code {
			req.True(strings.ContainsRune(DefaultCodeAlphabet, r),
				"code %q contains %q outside alphabet", room.Code, r)
		}
		_, dup := seen[room.Code]
		req.False(dup, "duplicate code %q", room.Code)
		seen[room.Code] = struct{}{}
	}
}

func TestCreatePrivateRoomExhaustedCodeSpace(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// A single-letter alphabet with length one has exactly one possible
	// code, so the second creation can never find a free one.
	first, err := store.CreatePrivateRoom(1, "a")
	req.NoError(err)
	req.Equal("a", first.Code)

	_, err = store.CreatePrivateRoom(1, "a")
	req.ErrorIs(err, ErrCodeSpaceExhausted)
}

func TestReapPrivateRooms(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	oldEmpty, err := store.CreatePrivateRoom(DefaultCodeLength, DefaultCodeAlphabet)
	req.NoError(err)
	oldActive, err := store.CreatePrivateRoom(DefaultCodeLength, DefaultCodeAlphabet)
	req.NoError(err)
	fresh, err := store.CreatePrivateRoom(DefaultCodeLength, DefaultCodeAlphabet)
	req.NoError(err)

	// Age the first two rooms past the cutoff.
	aged := time.Now().UTC().Add(-2 * time.Hour)
	for _, room := range []*model.PrivateRoom{oldEmpty, oldActive} {
		req.NoError(store.db.Model(room).Update("created_at", aged).Error)
	}

	reaped, err := store.ReapPrivateRooms([]string{oldActive.Code}, time.Now().UTC().Add(-time.Hour))
	req.NoError(err)
	req.EqualValues(1, reaped)

	_, err = store.FindPrivateRoom(oldEmpty.Code)
	req.ErrorIs(err, ErrRoomNotFound)
	_, err = store.FindPrivateRoom(oldActive.Code)
	req.NoError(err)
	_, err = store.FindPrivateRoom(fresh.Code)
	req.NoError(err)
}

func TestFindRooms(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	pub, err := store.CreatePublicRoom("general", "desc", 1)
	req.NoError(err)
	priv, err := store.CreatePrivateRoom(DefaultCodeLength, DefaultCodeAlphabet)
	req.NoError(err)

	found, err := store.FindPublicRoom(pub.ID)
	req.NoError(err)
	req.Equal("general", found.Name)

	_, err = store.FindPublicRoom(9999)
	req.ErrorIs(err, ErrRoomNotFound)

	foundPriv, err := store.FindPrivateRoom(priv.Code)
	req.NoError(err)
	req.Equal(priv.Code, foundPriv.Code)

	_, err = store.FindPrivateRoom("ZZZZZZ")
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestRoomExists(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	pub, err := store.CreatePublicRoom("general", "desc", 1)
	req.NoError(err)
	priv, err := store.CreatePrivateRoom(DefaultCodeLength, DefaultCodeAlphabet)
	req.NoError(err)

	req.NoError(store.RoomExists(pub.Ref()))
	req.NoError(store.RoomExists(priv.Ref()))

	req.ErrorIs(store.RoomExists(model.RoomRef{Kind: model.RoomKindPublic, Value: "9999"}), ErrRoomNotFound)
	req.ErrorIs(store.RoomExists(model.RoomRef{Kind: model.RoomKindPublic, Value: "not-a-number"}), ErrRoomNotFound)
	req.ErrorIs(store.RoomExists(model.RoomRef{Kind: model.RoomKindPrivate, Value: "ZZZZZZ"}), ErrRoomNotFound)
}

func TestAppendAndListMessages(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	pub := model.RoomRef{Kind: model.RoomKindPublic, Value: "3"}
	priv := model.RoomRef{Kind: model.RoomKindPrivate, Value: "AbCdEf"}

	for _, body := range []string{"first", "second", "third"} {
		msg, err := store.AppendMessage(pub, "alice", body)
		req.NoError(err)
		req.False(msg.Timestamp.IsZero())
	}
	_, err := store.AppendMessage(priv, "bob", "other room")
	req.NoError(err)

	msgs, err := store.RoomMessages(pub)
	req.NoError(err)
	req.Len(msgs, 3)
	req.Equal("first", msgs[0].Body)
	req.Equal("second", msgs[1].Body)
	req.Equal("third", msgs[2].Body)
	for _, m := range msgs {
		req.Equal(model.RoomKindPublic, m.RoomKind)
		req.Equal("3", m.RoomID)
		req.Equal("alice", m.Sender)
	}

	privMsgs, err := store.RoomMessages(priv)
	req.NoError(err)
	req.Len(privMsgs, 1)
	req.Equal("other room", privMsgs[0].Body)
}

func TestMessagesSeparatedByRoomKind(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// Identical values under different kinds are different logs.
	pub := model.RoomRef{Kind: model.RoomKindPublic, Value: "42"}
	priv := model.RoomRef{Kind: model.RoomKindPrivate, Value: "42"}

	_, err := store.AppendMessage(pub, "alice", "public side")
	req.NoError(err)

	privMsgs, err := store.RoomMessages(priv)
	req.NoError(err)
	req.Empty(privMsgs)
}

func TestUsers(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	user, err := store.CreateUser("alice", "hash")
	req.NoError(err)
	req.NotZero(user.ID)

	_, err = store.CreateUser("alice", "other-hash")
	req.ErrorIs(err, ErrDuplicateUsername)

	found, err := store.FindUserByUsername("alice")
	req.NoError(err)
	req.Equal(user.ID, found.ID)

	_, err = store.FindUserByUsername("nobody")
	req.ErrorIs(err, ErrUserNotFound)
}

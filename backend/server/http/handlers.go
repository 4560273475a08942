package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"github.com/parley-chat/parley/backend/auth"
	"github.com/parley-chat/parley/backend/model"
	"github.com/parley-chat/parley/backend/storage/sqlite"
)

type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateRoomRequest struct {
	Name        string `json:"room_name"`
	Description string `json:"description"`
}

type PrivateRoomRequest struct {
	Name   string `json:"name"`
	Create bool   `json:"create,omitempty"`
	Join   bool   `json:"join,omitempty"`
	Code   string `json:"code,omitempty"`
}

type MessageView struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	defer func() {
		_ = r.Body.Close()
	}()
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (srv *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "all fields are required"})
		return
	}

	hash, err := srv.hasher.Hash(req.Password)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to hash password")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	user, err := srv.store.CreateUser(req.Username, hash)
	if err != nil {
		if errors.Is(err, sqlite.ErrDuplicateUsername) {
			writeJSON(w, http.StatusConflict, &GenericResponse{Error: "username already exists"})
			return
		}
		srv.logger.Error().Err(err).Msg("failed to create user")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	srv.logger.Debug().Str("username", user.Username).Msg("user signed up")
	writeJSON(w, http.StatusCreated, &GenericResponse{Message: "OK"})
}

func (srv *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	user, err := srv.store.FindUserByUsername(req.Username)
	if err != nil || !srv.hasher.Verify(req.Password, user.PasswordHash) {
		writeJSON(w, http.StatusUnauthorized, &GenericResponse{Error: "invalid credentials"})
		return
	}
	token, err := srv.tokens.Issue(user.ID, user.Username)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to issue token")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: map[string]string{"token": token}})
}

func (srv *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	rooms, err := srv.store.ListPublicRooms()
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to list rooms")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: rooms})
}

func (srv *Server) createRoom(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Description == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "room name and description are required"})
		return
	}

	room, err := srv.store.CreatePublicRoom(req.Name, req.Description, claims.UserID)
	if err != nil {
		if errors.Is(err, sqlite.ErrDuplicateRoomName) {
			writeJSON(w, http.StatusConflict, &GenericResponse{Error: "room name already exists"})
			return
		}
		srv.logger.Error().Err(err).Msg("failed to create room")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	srv.logger.Debug().
		Str("name", room.Name).
		Str("owner", claims.Username).
		Msg("public room created")
	writeJSON(w, http.StatusCreated, &GenericResponse{Data: room})
}

// privateRoom either creates a fresh code-addressed room or validates a code
// supplied by a joining client. Either way the caller gets back the room code
// and display name to use over the websocket.
func (srv *Server) privateRoom(w http.ResponseWriter, r *http.Request) {
	var req PrivateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "name is required"})
		return
	}

	var code string
	switch {
	case req.Create:
		room, err := srv.store.CreatePrivateRoom(sqlite.DefaultCodeLength, sqlite.DefaultCodeAlphabet)
		if err != nil {
			srv.logger.Error().Err(err).Msg("failed to create private room")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		code = room.Code
	case req.Join:
		if req.Code == "" {
			writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "please enter a room code to enter a chat room"})
			return
		}
		room, err := srv.store.FindPrivateRoom(req.Code)
		if err != nil {
			if errors.Is(err, sqlite.ErrRoomNotFound) {
				writeJSON(w, http.StatusNotFound, &GenericResponse{Error: "room code invalid"})
				return
			}
			srv.logger.Error().Err(err).Msg("failed to find private room")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		code = room.Code
	default:
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "either create or join must be set"})
		return
	}

	writeJSON(w, http.StatusOK, &GenericResponse{Data: map[string]string{
		"room": code,
		"name": req.Name,
	}})
}

func (srv *Server) roomMessages(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	msgs, err := srv.store.RoomMessages(model.ParseRoomRef(room))
	if err != nil {
		srv.logger.Error().Err(err).Str("room", room).Msg("failed to load messages")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	views := lo.Map(msgs, func(m model.Message, _ int) MessageView {
		return MessageView{
			Sender:    m.Sender,
			Message:   m.Body,
			Timestamp: m.Timestamp.Format("2006-01-02 15:04:05"),
		}
	})
	writeJSON(w, http.StatusOK, &GenericResponse{Data: views})
}

func (srv *Server) authenticated(next func(http.ResponseWriter, *http.Request, *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, &GenericResponse{Error: "authorization required"})
			return
		}
		claims, err := srv.tokens.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, &GenericResponse{Error: "invalid token"})
			return
		}
		next(w, r, claims)
	}
}

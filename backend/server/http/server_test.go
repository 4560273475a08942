package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/backend/auth"
	"github.com/parley-chat/parley/backend/model"
	"github.com/parley-chat/parley/backend/ratelimit"
	"github.com/parley-chat/parley/backend/storage/sqlite"
)

type testEnv struct {
	srv   *Server
	store *sqlite.Store
}

func newTestEnv(t *testing.T, aiURL string, aiLimit int) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	dir := t.TempDir()
	store, err := sqlite.New(sqlite.Config{
		Path:   filepath.Join(dir, "test.db"),
		Logger: &logger,
	})
	require.NoError(t, err)

	srv := NewServer(Config{
		Logger:       &logger,
		Store:        store,
		Tokens:       auth.NewTokenManager("test-secret"),
		Hasher:       auth.NewPasswordHasher(),
		Limiter:      ratelimit.NewMemoryLimiter(aiLimit, time.Minute),
		UploadDir:    filepath.Join(dir, "uploads"),
		AIServiceURL: aiURL,
		ListenAddr:   ":0",
	})
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, path, rd)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(w, r)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) GenericResponse {
	t.Helper()
	var resp GenericResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) loginAs(t *testing.T, username, password string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/signup", "", SignupRequest{Username: username, Password: password})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func TestSignupValidation(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)

	w := env.do(t, http.MethodPost, "/api/signup", "", SignupRequest{Username: "alice"})
	req.Equal(http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/signup", "", SignupRequest{Username: "alice", Password: "pw"})
	req.Equal(http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/signup", "", SignupRequest{Username: "alice", Password: "other"})
	req.Equal(http.StatusConflict, w.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)
	env.loginAs(t, "alice", "pw")

	w := env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "wrong"})
	req.Equal(http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "nobody", Password: "pw"})
	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestCreateRoomRequiresAuth(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)

	w := env.do(t, http.MethodPost, "/api/rooms", "", CreateRoomRequest{Name: "general", Description: "d"})
	req.Equal(http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms", "garbage-token", CreateRoomRequest{Name: "general", Description: "d"})
	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestCreateAndListRooms(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)
	token := env.loginAs(t, "alice", "pw")

	w := env.do(t, http.MethodPost, "/api/rooms", token, CreateRoomRequest{Name: "general", Description: "general chatter"})
	req.Equal(http.StatusCreated, w.Code)

	// Creating "general" again returns a conflict and leaves one room.
	w = env.do(t, http.MethodPost, "/api/rooms", token, CreateRoomRequest{Name: "general", Description: "again"})
	req.Equal(http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/rooms", "", nil)
	req.Equal(http.StatusOK, w.Code)
	var resp struct {
		Data []model.PublicRoom `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Len(resp.Data, 1)
	req.Equal("general", resp.Data[0].Name)
}

func TestPrivateRoomCreateAndJoin(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)

	w := env.do(t, http.MethodPost, "/api/private", "", PrivateRoomRequest{Name: "alice", Create: true})
	req.Equal(http.StatusOK, w.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	code := resp.Data["room"]
	req.Len(code, sqlite.DefaultCodeLength)
	req.Equal("alice", resp.Data["name"])

	w = env.do(t, http.MethodPost, "/api/private", "", PrivateRoomRequest{Name: "bob", Join: true, Code: code})
	req.Equal(http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/private", "", PrivateRoomRequest{Name: "bob", Join: true, Code: "ZZZZZZ"})
	req.Equal(http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/private", "", PrivateRoomRequest{Create: true})
	req.Equal(http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/private", "", PrivateRoomRequest{Name: "bob", Join: true})
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestRoomMessagesHistory(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)

	room := model.RoomRef{Kind: model.RoomKindPublic, Value: "3"}
	_, err := env.store.AppendMessage(room, "alice", "hello")
	req.NoError(err)
	_, err = env.store.AppendMessage(room, "bob", "hi back")
	req.NoError(err)

	w := env.do(t, http.MethodGet, "/api/rooms/3/messages", "", nil)
	req.Equal(http.StatusOK, w.Code)
	var resp struct {
		Data []MessageView `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Len(resp.Data, 2)
	req.Equal("hello", resp.Data[0].Message)
	req.Equal("alice", resp.Data[0].Sender)
	req.Equal("hi back", resp.Data[1].Message)
}

func uploadRequest(t *testing.T, filename string, content []byte) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return httptest.NewRecorder(), r
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestUploadAndServe(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)

	w, r := uploadRequest(t, "cat.png", pngBytes)
	env.srv.Handler.ServeHTTP(w, r)
	req.Equal(http.StatusOK, w.Code)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	fileURL := resp.Data["file_url"]
	req.True(strings.HasPrefix(fileURL, "/uploads/"))
	req.True(strings.HasSuffix(fileURL, "_cat.png"))

	stored := strings.TrimPrefix(fileURL, "/uploads/")
	_, err := os.Stat(filepath.Join(env.srv.uploadDir, stored))
	req.NoError(err)

	get := env.do(t, http.MethodGet, fileURL, "", nil)
	req.Equal(http.StatusOK, get.Code)
	req.Equal(pngBytes, get.Body.Bytes())
}

func TestUploadRejectsDisallowedTypes(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 2)

	// Disallowed extension.
	w, r := uploadRequest(t, "evil.exe", []byte("MZ..."))
	env.srv.Handler.ServeHTTP(w, r)
	req.Equal(http.StatusBadRequest, w.Code)

	// Allowed extension but mismatched content.
	w, r = uploadRequest(t, "fake.png", []byte("#!/bin/sh\nrm -rf /\n"))
	env.srv.Handler.ServeHTTP(w, r)
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestSanitizeFilename(t *testing.T) {
	req := require.New(t)
	req.Equal("cat.png", sanitizeFilename("cat.png"))
	req.Equal("passwd", sanitizeFilename("../../etc/passwd"))
	req.Equal("c_t.png", sanitizeFilename("c t.png"))
	req.Empty(sanitizeFilename(".."))
	req.Empty(sanitizeFilename("..."))
}

func TestAIChatRateLimited(t *testing.T) {
	req := require.New(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"reply":"hello there"}`)
	}))
	defer upstream.Close()

	env := newTestEnv(t, upstream.URL, 2)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/ai", "", AIChatRequest{Message: "hi"})
		req.Equal(http.StatusOK, w.Code)
		req.Contains(w.Body.String(), "hello there")
	}

	w := env.do(t, http.MethodPost, "/api/ai", "", AIChatRequest{Message: "hi"})
	req.Equal(http.StatusTooManyRequests, w.Code)
}

func TestAIChatValidation(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "", 10)

	w := env.do(t, http.MethodPost, "/api/ai", "", AIChatRequest{})
	req.Equal(http.StatusBadRequest, w.Code)

	// No upstream configured.
	w = env.do(t, http.MethodPost, "/api/ai", "", AIChatRequest{Message: "hi"})
	req.Equal(http.StatusServiceUnavailable, w.Code)
}

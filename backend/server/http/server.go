package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/backend/auth"
	"github.com/parley-chat/parley/backend/model"
	"github.com/parley-chat/parley/backend/ratelimit"
)

const (
	defaultShutdownDeadline = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

// Store is the durable layer surface the API needs: accounts, the room
// registry and the message log.
type Store interface {
	CreateUser(username, passwordHash string) (*model.User, error)
	FindUserByUsername(username string) (*model.User, error)
	CreatePublicRoom(name, description string, ownerID uint) (*model.PublicRoom, error)
	ListPublicRooms() ([]model.PublicRoom, error)
	CreatePrivateRoom(length int, alphabet string) (*model.PrivateRoom, error)
	FindPrivateRoom(code string) (*model.PrivateRoom, error)
	RoomMessages(room model.RoomRef) ([]model.Message, error)
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger    zerolog.Logger
	store     Store
	tokens    *auth.TokenManager
	hasher    *auth.PasswordHasher
	limiter   ratelimit.Limiter
	uploadDir string
	aiURL     string
	aiClient  *http.Client
	*http.Server
}

type Config struct {
	Logger       *zerolog.Logger
	Store        Store
	Tokens       *auth.TokenManager
	Hasher       *auth.PasswordHasher
	Limiter      ratelimit.Limiter
	UploadDir    string
	AIServiceURL string
	ListenAddr   string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:    cfg.Logger.With().Str("component", "api-server").Logger(),
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		hasher:    cfg.Hasher,
		limiter:   cfg.Limiter,
		uploadDir: cfg.UploadDir,
		aiURL:     cfg.AIServiceURL,
		aiClient:  &http.Client{Timeout: 30 * time.Second},
	}

	r := http.NewServeMux()
	r.HandleFunc("POST /api/signup", srv.signup)
	r.HandleFunc("POST /api/login", srv.login)
	r.HandleFunc("GET /api/rooms", srv.listRooms)
	r.HandleFunc("POST /api/rooms", srv.authenticated(srv.createRoom))
	r.HandleFunc("POST /api/private", srv.privateRoom)
	r.HandleFunc("GET /api/rooms/{room}/messages", srv.roomMessages)
	r.HandleFunc("POST /api/upload", srv.upload)
	r.HandleFunc("GET /uploads/{file}", srv.uploaded)
	r.HandleFunc("POST /api/ai", srv.aiChat)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

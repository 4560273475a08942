package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/parley-chat/parley/backend/auth"
	"github.com/parley-chat/parley/backend/config"
	"github.com/parley-chat/parley/backend/fanout"
	"github.com/parley-chat/parley/backend/ratelimit"
	"github.com/parley-chat/parley/backend/reaper"
	httpServer "github.com/parley-chat/parley/backend/server/http"
	websocketServer "github.com/parley-chat/parley/backend/server/websocket"
	"github.com/parley-chat/parley/backend/session"
	"github.com/parley-chat/parley/backend/storage/sqlite"
)

const (
	aiRateLimit       = 2
	aiRateLimitWindow = time.Minute
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":8888", "websocket chat listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.SecretKey == "" {
		logger.Fatal().Msg("SECRET_KEY must be set")
	}
	logger.Trace().Msg(spew.Sdump(cfg))

	store, err := sqlite.New(sqlite.Config{
		Path:   cfg.DatabasePath,
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		limiter = ratelimit.NewRedisLimiter(
			redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
			"parley:ratelimit:", aiRateLimit, aiRateLimitWindow)
	} else {
		limiter = ratelimit.NewMemoryLimiter(aiRateLimit, aiRateLimitWindow)
	}

	broadcaster := fanout.New(&logger)
	svc := session.NewService(session.Config{
		Registry:    store,
		MessageLog:  store,
		Broadcaster: broadcaster,
		Logger:      &logger,
	})
	reap := reaper.New(reaper.Config{
		Registry:   store,
		Membership: broadcaster,
		Interval:   cfg.ReapInterval,
		TTL:        cfg.PrivateRoomTTL,
		Logger:     &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:       &logger,
		Store:        store,
		Tokens:       auth.NewTokenManager(cfg.SecretKey),
		Hasher:       auth.NewPasswordHasher(),
		Limiter:      limiter,
		UploadDir:    cfg.UploadDir,
		AIServiceURL: cfg.AIServiceURL,
		ListenAddr:   *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:         &logger,
		SessionService: svc,
		ListenAddr:     *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)
	go reap.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

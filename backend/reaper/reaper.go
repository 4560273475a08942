package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/backend/model"
)

type (
	Registry interface {
		ReapPrivateRooms(active []string, cutoff time.Time) (int64, error)
	}

	Membership interface {
		ActiveRooms() []model.RoomRef
	}

	// Reaper periodically deletes private rooms that have outlived their
	// TTL with nobody connected. Without it the code space fills up for as
	// long as the database lives.
	Reaper struct {
		registry   Registry
		membership Membership
		interval   time.Duration
		ttl        time.Duration
		logger     zerolog.Logger
	}

	Config struct {
		Registry   Registry
		Membership Membership
		Interval   time.Duration
		TTL        time.Duration
		Logger     *zerolog.Logger
	}
)

func New(cfg Config) *Reaper {
	return &Reaper{
		registry:   cfg.Registry,
		membership: cfg.Membership,
		interval:   cfg.Interval,
		ttl:        cfg.TTL,
		logger:     cfg.Logger.With().Str("component", "reaper").Logger(),
	}
}

func (r *Reaper) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		r.logger.Debug().Msg("reaper stopped")
		wg.Done()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.interval).
		Dur("ttl", r.ttl).
		Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Reaper) reap() {
	active := r.membership.ActiveRooms()
	codes := make([]string, 0, len(active))
	for _, ref := range active {
		if ref.Kind == model.RoomKindPrivate {
			codes = append(codes, ref.Value)
		}
	}

	reaped, err := r.registry.ReapPrivateRooms(codes, time.Now().UTC().Add(-r.ttl))
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to reap private rooms")
		return
	}
	if reaped > 0 {
		r.logger.Info().Int64("rooms", reaped).Msg("reaped empty private rooms")
	}
}

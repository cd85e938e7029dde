package server

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
)

// job is a background task repeated on a fixed interval. A zero interval
// disables it.
type job struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

func (app *App) jobs() []job {
	c := app.config
	return []job{
		{
			name:     "secret_sweeper",
			interval: c.SecretSweepInterval,
			fn: func(ctx context.Context) error {
				_, err := app.secrets.PurgeExpired(ctx)
				return err
			},
		},
		{
			name:     "session_pruner",
			interval: c.SecretSweepInterval,
			fn: func(ctx context.Context) error {
				_, err := app.auth.PruneIdleSessions(ctx)
				return err
			},
		},
		{
			name:     "shredder",
			interval: c.ShredInterval,
			fn: func(ctx context.Context) error {
				_, err := app.shredder.Shred(ctx, c.RetentionDays, false)
				return err
			},
		},
	}
}

func (j job) run(ctx context.Context, log logging.Logger) {
	if j.interval <= 0 {
		return
	}
	log = log.With("job", j.name)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.fn(ctx); err != nil && ctx.Err() == nil {
				log.Error(ctx, "job failed", "err", err)
			}
		}
	}
}

package usecase

import (
	"context"
	"time"

	"storegate/internal/infra/db"
	"storegate/internal/log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExpirySweeper periodically hard-deletes KV entries whose TTL has
// elapsed (spec §4.6). It runs independently of any tenant session: Pool
// is a maintenance connection carrying BYPASSRLS (see db.NewSweeperPool),
// since a single sweep pass has to see every tenant's expired rows at
// once rather than one tenant's session at a time.
type ExpirySweeper struct {
	Entries  *db.KVEntryRepo
	Pool     *pgxpool.Pool
	Interval time.Duration
}

func NewExpirySweeper(entries *db.KVEntryRepo, pool *pgxpool.Pool, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweeper{Entries: entries, Pool: pool, Interval: interval}
}

// Run blocks, sweeping on Interval until ctx is canceled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *ExpirySweeper) sweepOnce(ctx context.Context) {
	count, err := s.Entries.ExpireDue(ctx, s.Pool, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if count > 0 {
		log.Info().Int64("count", count).Msg("expired keys swept")
	}
}

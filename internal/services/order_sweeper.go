package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/planlift/backend/internal/models"
)

// OrderSweeper expires stale unpaid orders on a fixed period. Each sweep
// is one bulk conditional update, so it is safe next to concurrent
// payments: an order that gets paid between sweeps no longer matches the
// pending guard.
type OrderSweeper struct {
	db       *sql.DB
	interval time.Duration
	maxAge   time.Duration
}

func NewOrderSweeper(db *sql.DB, interval, maxAge time.Duration) *OrderSweeper {
	return &OrderSweeper{db: db, interval: interval, maxAge: maxAge}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// A failed sweep is logged and never stops the loop.
func (s *OrderSweeper) Run(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		log.Printf("[SWEEPER] Sweep failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SWEEPER] Stopping")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("[SWEEPER] Sweep failed: %v", err)
			}
		}
	}
}

// Sweep expires every order still pending beyond the age threshold.
func (s *OrderSweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.maxAge)

	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE status = $2 AND created_at < $3`,
		models.OrderExpired, models.OrderPending, cutoff)
	if err != nil {
		return err
	}

	expired, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if expired > 0 {
		log.Printf("[SWEEPER] Expired %d stale unpaid orders", expired)
	}
	return nil
}

// Package maintenance runs the background sweeps: cancelling gateway
// charges that never received a callback, and expiring cards past their
// expiry date.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/journal"
	"sendpesa/internal/store"
)

const (
	stalePendingAge  = 24 * time.Hour
	staleSweepBatch  = 200
	sweepEverySpec   = "@every 10m"
	expirySweepsSpec = "@hourly"
)

// Sweeper owns the periodic cleanup jobs.
type Sweeper struct {
	store store.Store
}

// NewSweeper returns a sweeper over the given store.
func NewSweeper(s store.Store) *Sweeper {
	return &Sweeper{store: s}
}

// CancelStalePending cancels gateway-driven rows that have sat pending for
// longer than a day; the provider will not call back for them anymore.
// Withdrawals stay pending regardless of age, they await an admin decision.
func (s *Sweeper) CancelStalePending(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-stalePendingAge)
	txns, err := s.store.Journal().StalePending(ctx, cutoff, staleSweepBatch)
	if err != nil {
		return 0, err
	}
	j := journal.New(s.store)
	cancelled := 0
	for i := range txns {
		txn := &txns[i]
		if txn.Type != domain.TypeDeposit && txn.Type != domain.TypeCardPurchase {
			continue
		}
		if _, err := j.Transition(ctx, txn.ID, domain.StatusCancelled, journal.Extra{
			Metadata: map[string]string{"cancelled_by": "stale-sweep"},
		}); err != nil {
			logrus.WithFields(logrus.Fields{
				"transaction_id": txn.ID,
				"error":          err.Error(),
			}).Warn("Stale sweep transition failed")
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		logrus.WithField("count", cancelled).Info("Cancelled stale pending transactions")
	}
	return cancelled, nil
}

// ExpireCards marks cards past their expiry.
func (s *Sweeper) ExpireCards(ctx context.Context) (int64, error) {
	n, err := s.store.Cards().ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logrus.WithField("count", n).Info("Expired virtual cards")
	}
	return n, nil
}

// Schedule registers the sweeps on the given cron runner.
func Schedule(c *cron.Cron, s *Sweeper) error {
	if _, err := c.AddFunc(sweepEverySpec, func() {
		if _, err := s.CancelStalePending(context.Background()); err != nil {
			logrus.WithField("error", err.Error()).Error("Stale pending sweep failed")
		}
	}); err != nil {
		return err
	}
	_, err := c.AddFunc(expirySweepsSpec, func() {
		if _, err := s.ExpireCards(context.Background()); err != nil {
			logrus.WithField("error", err.Error()).Error("Card expiry sweep failed")
		}
	})
	return err
}

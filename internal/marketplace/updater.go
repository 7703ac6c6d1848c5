package marketplace

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"dropsync-api/internal/domain"
)

// inventoryAPI is the slice of the client the updater needs.
type inventoryAPI interface {
	ReviseQuantities(ctx context.Context, batch []domain.QuantityUpdate) (map[string]bool, error)
}

// Updater pushes quantity updates in batches, retrying transient failures
// within a bounded budget. Permanent failures are recorded per SKU and
// never retried; retried updates are idempotent (same absolute quantity).
type Updater struct {
	api         inventoryAPI
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	log         *logrus.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUpdater wraps api with batching, retry and failure accounting.
func NewUpdater(api inventoryAPI, batchSize, maxRetries int, backoffBase time.Duration, log *logrus.Logger) *Updater {
	if batchSize <= 0 {
		batchSize = 4
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Updater{
		api:         api,
		batchSize:   batchSize,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		log:         log,
		sleep:       sleepCtx,
	}
}

// Apply pushes all updates and returns one outcome per submitted SKU.
func (u *Updater) Apply(ctx context.Context, updates []domain.QuantityUpdate) []domain.UpdateOutcome {
	outcomes := make([]domain.UpdateOutcome, 0, len(updates))

	for start := 0; start < len(updates); start += u.batchSize {
		end := start + u.batchSize
		if end > len(updates) {
			end = len(updates)
		}
		outcomes = append(outcomes, u.applyBatch(ctx, updates[start:end])...)
	}

	return outcomes
}

func (u *Updater) applyBatch(ctx context.Context, batch []domain.QuantityUpdate) []domain.UpdateOutcome {
	var acked map[string]bool
	var lastErr error

	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		acked, lastErr = u.api.ReviseQuantities(ctx, batch)
		if lastErr == nil {
			return batchOutcomes(batch, acked, "not acknowledged by marketplace")
		}

		if !domain.IsTransient(lastErr) {
			break
		}

		u.log.WithFields(logrus.Fields{
			"component": "updater",
			"attempt":   attempt,
			"batch":     len(batch),
		}).Warnf("transient marketplace error: %v", lastErr)

		if attempt == u.maxRetries {
			break
		}
		if err := u.sleep(ctx, backoff(attempt, u.backoffBase)); err != nil {
			lastErr = err
			break
		}
	}

	reason := "update failed"
	var perm *domain.PermanentAPIError
	switch {
	case errors.As(lastErr, &perm):
		reason = perm.Error()
	case lastErr != nil:
		reason = lastErr.Error()
	}
	return batchOutcomes(batch, nil, reason)
}

func batchOutcomes(batch []domain.QuantityUpdate, acked map[string]bool, failReason string) []domain.UpdateOutcome {
	outcomes := make([]domain.UpdateOutcome, len(batch))
	for i, upd := range batch {
		if acked[upd.ItemID] {
			outcomes[i] = domain.UpdateOutcome{SKU: upd.SKU, ItemID: upd.ItemID, Updated: true}
		} else {
			outcomes[i] = domain.UpdateOutcome{SKU: upd.SKU, ItemID: upd.ItemID, Reason: failReason}
		}
	}
	return outcomes
}

// backoff returns base * 2^(attempt-1), capped at 10 minutes.
func backoff(attempt int, base time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	const maxBackoff = 10 * time.Minute
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

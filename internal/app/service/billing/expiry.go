package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/pkg/types"
)

const expiryBatchSize = 100

// ExpireDue moves ACTIVE subscriptions whose cancellation took effect to
// EXPIRED and returns how many were changed.
func (s *Service) ExpireDue(ctx context.Context) (n int, err error) {
	defer s.observe("expire", time.Now(), &err)

	now := s.now().UTC()
	for {
		due, err := s.store.DueForExpiry(ctx, now, expiryBatchSize)
		if err != nil {
			return n, fmt.Errorf("failed to list due subscriptions: %w", err)
		}
		if len(due) == 0 {
			return n, nil
		}
		for _, d := range due {
			changed, err := s.expireOne(ctx, d.ID, now)
			if err != nil {
				return n, err
			}
			if changed {
				n++
			}
		}
		if len(due) < expiryBatchSize {
			return n, nil
		}
	}
}

func (s *Service) expireOne(ctx context.Context, subID string, now time.Time) (changed bool, err error) {
	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		sub, err := tx.SubscriptionForUpdate(ctx, subID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// Re-check under the lock; a resume may have landed in between.
		if sub.Status != types.SubscriptionStatusActive || !sub.CancelAtPeriodEnd ||
			sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now) {
			return nil
		}
		before := snapshot(sub)
		sub.Status = types.SubscriptionStatusExpired
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to expire subscription %s: %w", sub.ID, err)
		}
		changed = true
		return s.logChange(ctx, tx, before, sub, types.SubscriptionChangeReasonExpire, nil)
	})
	return changed, err
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/fatflowers/aspy/internal/app/service/gateway"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/types"
)

const (
	CancelStatusSuccess          = "success"
	CancelStatusAlreadyCancelled = "already_cancelled"
	ResumeStatusSuccess          = "success"
	ResumeStatusNotCancelled     = "not_cancelled"
)

type CancelResult struct {
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	PeriodEnd   *time.Time `json:"period_end"`
	AccessUntil *time.Time `json:"access_until,omitempty"`
}

type ResumeResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Cancel schedules the ACTIVE subscription to end with its current period.
// When the subscription is linked to the gateway, the gateway is told first
// and a gateway failure leaves the local flags untouched.
func (s *Service) Cancel(ctx context.Context, userID string) (res *CancelResult, err error) {
	defer s.observe("cancel", time.Now(), &err)

	var remoteRef string
	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		sub, e := tx.ActiveSubscriptionForUpdate(ctx, userID)
		if errors.Is(e, ledger.ErrNotFound) {
			return ErrNoActiveSubscription
		}
		if e != nil {
			return e
		}
		if sub.CancelAtPeriodEnd {
			res = &CancelResult{
				Status:    CancelStatusAlreadyCancelled,
				Message:   "Subscription is already scheduled for cancellation",
				PeriodEnd: sub.CurrentPeriodEnd,
			}
			return nil
		}

		before := snapshot(sub)
		ref := lo.FromPtr(sub.GatewaySubscriptionID)
		linked := ref != ""
		if linked && !gateway.IsMockRef(ref) {
			if e := s.gw.Cancel(ctx, ref, true); e != nil {
				return fmt.Errorf("%w: %w", ErrCancellationFailed, e)
			}
			remoteRef = ref
		}

		now := s.now().UTC()
		sub.CancelAtPeriodEnd = true
		sub.CancelledAt = &now
		if e := tx.SaveSubscription(ctx, sub); e != nil {
			return e
		}
		if e := s.logChange(ctx, tx, before, sub, types.SubscriptionChangeReasonCancel, map[string]any{"gateway_ref": ref}); e != nil {
			return e
		}

		if !linked {
			res = &CancelResult{
				Status:    CancelStatusSuccess,
				Message:   "Subscription cancelled. No further charges will be made.",
				PeriodEnd: sub.CurrentPeriodEnd,
			}
			return nil
		}
		res = &CancelResult{
			Status:      CancelStatusSuccess,
			Message:     "Subscription will be cancelled at the end of the current billing period",
			PeriodEnd:   sub.CurrentPeriodEnd,
			AccessUntil: sub.CurrentPeriodEnd,
		}
		return nil
	})
	if err != nil && remoteRef != "" {
		// The gateway stopped renewal but the local flags rolled back.
		logctx.FromCtx(ctx, s.log).Errorw("gateway cancelled but local update failed",
			"user_id", userID, "gateway_ref", remoteRef, "error", err)
	}
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) || errors.Is(err, ErrCancellationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCancellationFailed, err)
	}
	return res, nil
}

// Resume clears a scheduled cancellation. Only local state changes: the
// gateway has no primitive to undo cancel-at-cycle-end, so a resumed
// subscription that was cancelled remotely still stops renewing there.
func (s *Service) Resume(ctx context.Context, userID string) (res *ResumeResult, err error) {
	defer s.observe("resume", time.Now(), &err)

	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		sub, e := tx.ActiveSubscriptionForUpdate(ctx, userID)
		if errors.Is(e, ledger.ErrNotFound) {
			return ErrNoActiveSubscription
		}
		if e != nil {
			return e
		}
		if !sub.CancelAtPeriodEnd {
			res = &ResumeResult{Status: ResumeStatusNotCancelled, Message: "Subscription is not scheduled for cancellation"}
			return nil
		}

		before := snapshot(sub)
		sub.CancelAtPeriodEnd = false
		sub.CancelledAt = nil
		if e := tx.SaveSubscription(ctx, sub); e != nil {
			return e
		}
		if e := s.logChange(ctx, tx, before, sub, types.SubscriptionChangeReasonResume, nil); e != nil {
			return e
		}
		res = &ResumeResult{Status: ResumeStatusSuccess, Message: "Subscription resumed. Auto-renewal is now active."}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resume subscription: %w", err)
	}
	return res, nil
}

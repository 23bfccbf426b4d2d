package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/types"
)

// Gateway webhook events the state machine reacts to.
const (
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionCompleted = "subscription.completed"
)

// GatewayEvent is a parsed webhook delivery. Payment fields are set for
// subscription.charged.
type GatewayEvent struct {
	Event           string
	SubscriptionRef string
	PaymentID       string
	AmountMinor     int64
	Currency        string
	Method          string
	InvoiceID       string
}

// EventOutcome reports what an event did to the ledger.
type EventOutcome struct {
	Applied        bool                     `json:"applied"`
	Reason         string                   `json:"reason,omitempty"`
	SubscriptionID string                   `json:"subscription_id,omitempty"`
	UserID         string                   `json:"user_id,omitempty"`
	Status         types.SubscriptionStatus `json:"status,omitempty"`
}

// ApplyGatewayEvent reconciles the subscription named by ev with the
// gateway's view. Unknown events are acknowledged without changes.
func (s *Service) ApplyGatewayEvent(ctx context.Context, ev GatewayEvent) (out *EventOutcome, err error) {
	defer s.observe("webhook", time.Now(), &err)

	switch ev.Event {
	case EventSubscriptionCharged, EventSubscriptionHalted, EventSubscriptionCancelled, EventSubscriptionCompleted:
	default:
		return &EventOutcome{Reason: "ignored event"}, nil
	}
	if ev.SubscriptionRef == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrSubscriptionUnknown)
	}

	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		sub, e := tx.SubscriptionByGatewayRef(ctx, ev.SubscriptionRef)
		if errors.Is(e, ledger.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSubscriptionUnknown, ev.SubscriptionRef)
		}
		if e != nil {
			return e
		}
		out = &EventOutcome{SubscriptionID: sub.ID, UserID: sub.UserID}
		before := snapshot(sub)
		now := s.now().UTC()

		switch ev.Event {
		case EventSubscriptionCharged:
			renewed, e := s.recordRenewal(ctx, tx, sub, ev, now)
			if e != nil {
				return e
			}
			if !renewed {
				out.Reason = "charge already recorded"
				out.Status = sub.Status
				return nil
			}
		case EventSubscriptionHalted:
			sub.Status = types.SubscriptionStatusPastDue
		case EventSubscriptionCancelled, EventSubscriptionCompleted:
			sub.Status = types.SubscriptionStatusExpired
			if sub.CancelledAt == nil {
				sub.CancelledAt = &now
			}
		}

		if e := tx.SaveSubscription(ctx, sub); e != nil {
			return e
		}
		out.Applied = true
		out.Status = sub.Status
		return s.logChange(ctx, tx, before, sub, types.SubscriptionChangeReasonWebhook, map[string]any{
			"event":      ev.Event,
			"payment_id": ev.PaymentID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// recordRenewal books the payment of a renewal charge and extends the
// period by one cycle from its current end. A payment id seen before (the
// first charge is booked by checkout verification) changes nothing.
func (s *Service) recordRenewal(ctx context.Context, tx *ledger.Store, sub *models.Subscription, ev GatewayEvent, now time.Time) (bool, error) {
	if ev.PaymentID != "" {
		if _, err := tx.PaymentByGatewayID(ctx, ev.PaymentID); err == nil {
			return false, nil
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return false, err
		}
		if err := tx.CreatePayment(ctx, &models.Payment{
			UserID:           sub.UserID,
			SubscriptionID:   lo.ToPtr(sub.ID),
			Amount:           minorToMajor(ev.AmountMinor),
			Currency:         lo.Ternary(ev.Currency != "", ev.Currency, "INR"),
			Status:           types.PaymentStatusCompleted,
			Provider:         types.PaymentProviderRazorpay,
			GatewayPaymentID: ev.PaymentID,
			GatewayRef:       ev.SubscriptionRef,
			GatewayInvoiceID: lo.EmptyableToPtr(ev.InvoiceID),
			MethodDetails:    datatypes.JSONMap{"method": ev.Method, "id": ev.PaymentID, "provider": string(types.PaymentProviderRazorpay)},
			CreatedAt:        now,
			CompletedAt:      &now,
		}); err != nil {
			return false, fmt.Errorf("failed to record renewal payment: %w", err)
		}
	}

	start := now
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
		start = *sub.CurrentPeriodEnd
	}
	end := start.Add(BillingPeriod)
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	sub.Status = types.SubscriptionStatusActive
	return true, nil
}

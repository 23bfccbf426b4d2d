package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/fatflowers/aspy/internal/app/service/gateway"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/types"
)

type PurchaseRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// PurchaseResult is what the checkout widget needs. Amount is in the
// currency's minor unit.
type PurchaseResult struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// InitiatePurchase creates a gateway subscription for planID and the PENDING
// invoice keyed by its reference. Nothing is committed unless both succeed.
func (s *Service) InitiatePurchase(ctx context.Context, user *models.User, planID string) (res *PurchaseResult, err error) {
	defer s.observe("initiate_purchase", time.Now(), &err)

	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if lo.FromPtr(plan.GatewayPlanID) == "" {
		return nil, ErrPlanNotConfigured
	}

	var customerRef string
	if s.gw.Mode() == config.GatewayModeLive {
		customerRef, err = s.ensureCustomer(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSubscriptionCreationFailed, err)
		}
	}

	var ref string
	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		var e error
		ref, e = s.gw.CreateSubscription(ctx, gateway.SubscriptionRequest{
			UserID:         user.ID,
			GatewayPlanID:  *plan.GatewayPlanID,
			CustomerRef:    customerRef,
			TotalCount:     TotalCycles,
			Quantity:       1,
			CustomerNotify: true,
			Notes: map[string]string{
				"user_id":   user.ID,
				"username":  user.Username,
				"plan_id":   plan.ID,
				"plan_name": plan.Name,
			},
		})
		if e != nil {
			return e
		}
		// One PENDING invoice per reference: a repeated reference reuses it.
		if inv, e := tx.PendingInvoiceForUpdate(ctx, user.ID, ref); e == nil {
			logctx.FromCtx(ctx, s.log).Warnw("pending invoice already exists for reference",
				"user_id", user.ID, "order_id", ref, "invoice_id", inv.ID)
			return nil
		} else if !errors.Is(e, ledger.ErrNotFound) {
			return e
		}
		return tx.CreateInvoice(ctx, &models.Invoice{
			UserID:     user.ID,
			PlanID:     lo.ToPtr(plan.ID),
			Amount:     minorToMajor(plan.Price),
			Currency:   plan.Currency,
			Status:     types.InvoiceStatusPending,
			GatewayRef: ref,
			CreatedAt:  s.now().UTC(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubscriptionCreationFailed, err)
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription purchase initiated",
		"user_id", user.ID, "plan_id", plan.ID, "order_id", ref, "mode", s.gw.Mode())
	return &PurchaseResult{OrderID: ref, Amount: plan.Price, Currency: plan.Currency, KeyID: s.gw.KeyID()}, nil
}

// ensureCustomer returns the user's gateway customer, creating it on first
// use. The reference is committed on its own so a later failure does not
// orphan a customer on the gateway.
func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if ref := lo.FromPtr(user.GatewayCustomerID); ref != "" {
		return ref, nil
	}
	ref, err := s.gw.CreateCustomer(ctx, gateway.Customer{UserID: user.ID, Name: user.Username, Email: user.Email})
	if err != nil {
		return "", err
	}
	if err := s.store.SetGatewayCustomerID(ctx, user.ID, ref); err != nil {
		return "", fmt.Errorf("failed to save customer reference: %w", err)
	}
	user.GatewayCustomerID = &ref
	return ref, nil
}

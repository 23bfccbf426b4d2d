package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/fatflowers/aspy/internal/app/service/gateway"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/types"
)

type VerifyRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature"`
}

const (
	VerifyStatusSuccess          = "success"
	VerifyStatusAlreadyProcessed = "already_processed"
)

type VerifyResult struct {
	Status         string  `json:"status"`
	Message        string  `json:"message"`
	PaymentID      string  `json:"payment_id"`
	SubscriptionID string  `json:"subscription_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

// settlement is what the gateway (or the mock path) says was paid.
type settlement struct {
	amount          decimal.Decimal
	currency        string
	method          string
	card            *gateway.CardSummary
	gwInvoice       string
	fetchInvoiceURL bool
}

// VerifyAndActivate settles the PENDING invoice for req.OrderID and
// activates the user's subscription. The invoice transition, the payment
// row and the subscription upsert commit together or not at all.
func (s *Service) VerifyAndActivate(ctx context.Context, user *models.User, req VerifyRequest) (res *VerifyResult, err error) {
	defer s.observe("verify_activate", time.Now(), &err)

	unlock, err := s.locker.Lock(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := logctx.FromCtx(ctx, s.log)
	err = s.store.Transaction(ctx, func(tx *ledger.Store) error {
		inv, e := tx.PendingInvoiceForUpdate(ctx, user.ID, req.OrderID)
		if errors.Is(e, ledger.ErrNotFound) {
			res, e = s.alreadyProcessed(ctx, tx, user.ID, req.OrderID)
			return e
		}
		if e != nil {
			return e
		}

		if existing, e := tx.PaymentByGatewayID(ctx, req.PaymentID); e == nil {
			log.Warnw("payment already recorded", "payment_id", req.PaymentID, "invoice_id", inv.ID)
			res = processedResult(existing, req.OrderID)
			return nil
		} else if !errors.Is(e, ledger.ErrNotFound) {
			return e
		}

		st, e := s.settle(ctx, inv, req)
		if e != nil {
			return e
		}
		res, e = s.activate(ctx, tx, user, inv, req, st)
		return e
	})
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) || errors.Is(err, ErrInvalidSignature) {
			return nil, err
		}
		log.Errorw("payment verification failed", "user_id", user.ID, "order_id", req.OrderID, "error", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrPaymentProcessingFailed, err)
	}
	return res, nil
}

func (s *Service) isMock(ref string) bool {
	return s.gw.Mode() == config.GatewayModeMock || gateway.IsMockRef(ref)
}

func (s *Service) settle(ctx context.Context, inv *models.Invoice, req VerifyRequest) (*settlement, error) {
	if s.isMock(req.OrderID) {
		return &settlement{
			amount:    inv.Amount,
			currency:  inv.Currency,
			method:    "card",
			gwInvoice: gateway.MockInvoiceRef(s.now()),
		}, nil
	}

	log := logctx.FromCtx(ctx, s.log)
	if err := s.gw.VerifySignature(ctx, req.OrderID, req.PaymentID, req.Signature); err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		// Subscription payment signatures are unreliable on the provider side.
		log.Warnw("signature verification skipped", "order_id", req.OrderID, "error", err.Error())
	}

	pd, err := s.gw.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment details: %w", err)
	}
	if _, err := s.gw.FetchSubscription(ctx, req.OrderID); err != nil {
		log.Infow("subscription details unavailable", "order_id", req.OrderID, "error", err.Error())
	}

	return &settlement{
		amount:          minorToMajor(pd.AmountMinor),
		currency:        lo.Ternary(pd.Currency != "", pd.Currency, inv.Currency),
		method:          pd.Method,
		card:            pd.Card,
		gwInvoice:       pd.InvoiceID,
		fetchInvoiceURL: pd.InvoiceID != "",
	}, nil
}

func (s *Service) activate(ctx context.Context, tx *ledger.Store, user *models.User, inv *models.Invoice, req VerifyRequest, st *settlement) (*VerifyResult, error) {
	log := logctx.FromCtx(ctx, s.log)
	now := s.now().UTC()

	details := datatypes.JSONMap{
		"method":   st.method,
		"id":       req.PaymentID,
		"provider": string(types.PaymentProviderRazorpay),
	}
	if st.card != nil {
		details["card_last4"] = st.card.Last4
		details["card_brand"] = st.card.Brand
	}
	payment := &models.Payment{
		UserID:           user.ID,
		InvoiceID:        lo.ToPtr(inv.ID),
		Amount:           st.amount,
		Currency:         st.currency,
		Status:           types.PaymentStatusCompleted,
		Provider:         types.PaymentProviderRazorpay,
		GatewayPaymentID: req.PaymentID,
		GatewayRef:       req.OrderID,
		GatewayInvoiceID: lo.EmptyableToPtr(st.gwInvoice),
		MethodDetails:    details,
		CreatedAt:        now,
		CompletedAt:      &now,
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	inv.Status = types.InvoiceStatusPaid
	inv.PaymentID = lo.ToPtr(payment.ID)
	inv.PaidAt = &now
	inv.Amount = st.amount
	inv.GatewayInvoiceID = lo.EmptyableToPtr(st.gwInvoice)
	if st.fetchInvoiceURL {
		if d, err := s.gw.FetchInvoice(ctx, st.gwInvoice); err != nil {
			log.Infow("could not fetch invoice url", "gateway_invoice_id", st.gwInvoice, "error", err.Error())
		} else if d.DownloadURL != "" {
			inv.InvoiceURL = lo.ToPtr(d.DownloadURL)
		}
	}

	if inv.PlanID != nil {
		plan, err := tx.GetPlan(ctx, *inv.PlanID)
		if err != nil {
			return nil, fmt.Errorf("failed to load invoice plan: %w", err)
		}
		sub, err := s.upsertSubscription(ctx, tx, user.ID, plan, req.OrderID, st, now)
		if err != nil {
			return nil, err
		}
		inv.SubscriptionID = lo.ToPtr(sub.ID)
		if err := tx.LinkPayment(ctx, payment.ID, sub.ID, inv.ID); err != nil {
			return nil, fmt.Errorf("failed to link payment: %w", err)
		}
	}

	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}

	log.Infow("subscription activated", "user_id", user.ID, "order_id", req.OrderID,
		"payment_id", req.PaymentID, "amount", st.amount.String())
	return &VerifyResult{
		Status:         VerifyStatusSuccess,
		Message:        "Subscription activated successfully",
		PaymentID:      req.PaymentID,
		SubscriptionID: req.OrderID,
		Amount:         inv.Amount.InexactFloat64(),
		Currency:       inv.Currency,
	}, nil
}

// upsertSubscription overwrites the user's latest subscription row, whatever
// its status or plan, or creates the first one. Upgrade, downgrade and
// renewal all take this path.
func (s *Service) upsertSubscription(ctx context.Context, tx *ledger.Store, userID string, plan *models.Plan, ref string, st *settlement, now time.Time) (*models.Subscription, error) {
	sub, err := tx.LatestSubscriptionForUpdate(ctx, userID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	before := snapshot(sub)
	if sub == nil {
		sub = &models.Subscription{UserID: userID, CreatedAt: now}
	}

	end := now.Add(BillingPeriod)
	sub.PlanID = plan.ID
	sub.Status = types.SubscriptionStatusActive
	sub.GatewaySubscriptionID = lo.ToPtr(ref)
	sub.CurrentPeriodStart = &now
	sub.CurrentPeriodEnd = &end
	sub.CancelAtPeriodEnd = false
	sub.CancelledAt = nil
	if st.method == "card" && st.card != nil {
		sub.CardLast4 = lo.EmptyableToPtr(st.card.Last4)
		sub.CardBrand = lo.EmptyableToPtr(st.card.Brand)
		sub.CardExpMonth = lo.EmptyableToPtr(st.card.ExpMonth)
		sub.CardExpYear = lo.EmptyableToPtr(st.card.ExpYear)
	}

	if before == nil {
		err = tx.CreateSubscription(ctx, sub)
	} else {
		err = tx.SaveSubscription(ctx, sub)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	if err := s.logChange(ctx, tx, before, sub, types.SubscriptionChangeReasonPurchase, map[string]any{
		"order_id": ref,
		"plan_id":  plan.ID,
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// alreadyProcessed answers a repeated verify for an invoice that has been
// paid. It writes nothing.
func (s *Service) alreadyProcessed(ctx context.Context, tx *ledger.Store, userID, ref string) (*VerifyResult, error) {
	inv, err := tx.PaidInvoiceByRef(ctx, userID, ref)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("%w for subscription %s", ErrInvoiceNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	if inv.PaymentID == nil {
		return &VerifyResult{Status: VerifyStatusAlreadyProcessed, Message: "Payment already processed",
			SubscriptionID: ref, Amount: inv.Amount.InexactFloat64(), Currency: inv.Currency}, nil
	}
	p, err := tx.GetPayment(ctx, *inv.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment of paid invoice: %w", err)
	}
	return processedResult(p, ref), nil
}

func processedResult(p *models.Payment, ref string) *VerifyResult {
	return &VerifyResult{
		Status:         VerifyStatusAlreadyProcessed,
		Message:        "Payment already processed",
		PaymentID:      p.GatewayPaymentID,
		SubscriptionID: ref,
		Amount:         p.Amount.InexactFloat64(),
		Currency:       p.Currency,
	}
}

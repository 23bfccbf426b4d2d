package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/aspy/internal/platform/razorpay"
	"github.com/fatflowers/aspy/pkg/config"
)

// Live talks to Razorpay.
type Live struct {
	rp *razorpay.Client
}

func NewLive(rp *razorpay.Client) *Live {
	return &Live{rp: rp}
}

func (l *Live) Mode() config.GatewayMode { return config.GatewayModeLive }

func (l *Live) KeyID() string { return l.rp.KeyID() }

func (l *Live) CreateCustomer(ctx context.Context, c Customer) (string, error) {
	cust, err := l.rp.CreateCustomer(ctx, razorpay.CustomerRequest{
		Name:         c.Name,
		Email:        c.Email,
		FailExisting: "0",
		Notes:        map[string]string{"user_id": c.UserID},
	})
	if err != nil {
		return "", mapErr("create customer", err)
	}
	return cust.ID, nil
}

func (l *Live) CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	notify := 0
	if req.CustomerNotify {
		notify = 1
	}
	sub, err := l.rp.CreateSubscription(ctx, razorpay.SubscriptionRequest{
		PlanID:         req.GatewayPlanID,
		CustomerID:     req.CustomerRef,
		TotalCount:     req.TotalCount,
		Quantity:       req.Quantity,
		CustomerNotify: notify,
		Notes:          req.Notes,
	})
	if err != nil {
		return "", mapErr("create subscription", err)
	}
	return sub.ID, nil
}

func (l *Live) VerifySignature(_ context.Context, ref, paymentRef, signature string) error {
	return mapErr("verify signature", l.rp.VerifySubscriptionSignature(ref, paymentRef, signature))
}

func (l *Live) VerifyWebhook(_ context.Context, body []byte, signature string) error {
	return mapErr("verify webhook", l.rp.VerifyWebhookSignature(body, signature))
}

func (l *Live) FetchPayment(ctx context.Context, paymentRef string) (*PaymentDetails, error) {
	p, err := l.rp.FetchPayment(ctx, paymentRef)
	if err != nil {
		return nil, mapErr("fetch payment", err)
	}
	out := &PaymentDetails{
		ID:          p.ID,
		AmountMinor: p.Amount,
		Currency:    p.Currency,
		Status:      p.Status,
		Method:      p.Method,
		InvoiceID:   p.InvoiceID,
	}
	if p.Card != nil {
		out.Card = &CardSummary{Last4: p.Card.Last4, Brand: p.Card.Network, ExpMonth: p.Card.ExpMonth, ExpYear: p.Card.ExpYear}
	}
	return out, nil
}

func (l *Live) FetchSubscription(ctx context.Context, ref string) (*SubscriptionDetails, error) {
	s, err := l.rp.FetchSubscription(ctx, ref)
	if err != nil {
		return nil, mapErr("fetch subscription", err)
	}
	return &SubscriptionDetails{ID: s.ID, Status: s.Status, PlanID: s.PlanID, CustomerID: s.CustomerID, PaidCount: s.PaidCount}, nil
}

func (l *Live) FetchInvoice(ctx context.Context, invoiceRef string) (*InvoiceDetails, error) {
	inv, err := l.rp.FetchInvoice(ctx, invoiceRef)
	if err != nil {
		return nil, mapErr("fetch invoice", err)
	}
	url := inv.ShortURL
	if url == "" {
		url = inv.InvoicePDF
	}
	if url == "" {
		url = inv.Receipt
	}
	return &InvoiceDetails{ID: inv.ID, DownloadURL: url}, nil
}

func (l *Live) Cancel(ctx context.Context, ref string, atCycleEnd bool) error {
	_, err := l.rp.CancelSubscription(ctx, ref, atCycleEnd)
	return mapErr("cancel subscription", err)
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, razorpay.ErrTimeout):
		return fmt.Errorf("%s: %w: %w", op, ErrGatewayTimeout, err)
	case errors.Is(err, razorpay.ErrSignatureMismatch):
		return fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

package notification_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/pkg/types"
)

type razorpayEntity[T any] struct {
	Entity T `json:"entity"`
}

type razorpaySubscription struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	PlanID string            `json:"plan_id"`
	Notes  map[string]string `json:"notes"`
}

type razorpayPayment struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	InvoiceID string `json:"invoice_id"`
}

// RazorpayNotification is a webhook body as delivered by Razorpay.
type RazorpayNotification struct {
	Event     string   `json:"event"`
	AccountID string   `json:"account_id"`
	Contains  []string `json:"contains"`
	CreatedAt int64    `json:"created_at"`
	Payload   struct {
		Subscription *razorpayEntity[razorpaySubscription] `json:"subscription"`
		Payment      *razorpayEntity[razorpayPayment]      `json:"payment"`
	} `json:"payload"`
}

type RazorpayNotificationParser struct {
	notification *RazorpayNotification
	raw          json.RawMessage
	receivedAt   time.Time
}

// NewRazorpayNotificationParser decodes body. The signature must already be
// checked.
func NewRazorpayNotificationParser(body []byte, receivedAt time.Time) (*RazorpayNotificationParser, error) {
	var n RazorpayNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to decode razorpay notification: %w", err)
	}
	if n.Event == "" {
		return nil, fmt.Errorf("razorpay notification without event")
	}
	return &RazorpayNotificationParser{notification: &n, raw: body, receivedAt: receivedAt}, nil
}

func (p *RazorpayNotificationParser) GetProvider(context.Context) types.PaymentProvider {
	return types.PaymentProviderRazorpay
}

func (p *RazorpayNotificationParser) GetEvent(context.Context) string {
	return p.notification.Event
}

func (p *RazorpayNotificationParser) GetNotificationTime(context.Context) time.Time {
	if p.notification.CreatedAt > 0 {
		return time.Unix(p.notification.CreatedAt, 0).UTC()
	}
	return p.receivedAt
}

// GetUserID reads the user id noted on the subscription at checkout.
func (p *RazorpayNotificationParser) GetUserID(context.Context) string {
	if sub := p.notification.Payload.Subscription; sub != nil {
		return sub.Entity.Notes["user_id"]
	}
	return ""
}

func (p *RazorpayNotificationParser) GetGatewayRef(context.Context) string {
	if sub := p.notification.Payload.Subscription; sub != nil {
		return sub.Entity.ID
	}
	return ""
}

func (p *RazorpayNotificationParser) GetGatewayEvent(ctx context.Context) billing.GatewayEvent {
	ev := billing.GatewayEvent{
		Event:           p.notification.Event,
		SubscriptionRef: p.GetGatewayRef(ctx),
	}
	if pay := p.notification.Payload.Payment; pay != nil {
		ev.PaymentID = pay.Entity.ID
		ev.AmountMinor = pay.Entity.Amount
		ev.Currency = pay.Entity.Currency
		ev.Method = pay.Entity.Method
		ev.InvoiceID = pay.Entity.InvoiceID
	}
	return ev
}

func (p *RazorpayNotificationParser) GetData(context.Context) any {
	return p.raw
}

package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fatflowers/aspy/pkg/config"
)

const mockKeyID = "dummy_key_id"

// Mock is the local stand-in used when no live credentials are configured.
// Subscription references carry the clock reading and a random suffix, so
// two checkouts in the same second never share one.
type Mock struct {
	keyID string
	now   func() time.Time
}

func NewMock(keyID string, now func() time.Time) *Mock {
	if keyID == "" {
		keyID = mockKeyID
	}
	if now == nil {
		now = time.Now
	}
	return &Mock{keyID: keyID, now: now}
}

func (m *Mock) Mode() config.GatewayMode { return config.GatewayModeMock }

func (m *Mock) KeyID() string { return m.keyID }

func (m *Mock) CreateCustomer(_ context.Context, c Customer) (string, error) {
	return "cust" + MockMarker + c.UserID, nil
}

func (m *Mock) CreateSubscription(_ context.Context, req SubscriptionRequest) (string, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("sub%s%s_%d_%s", MockMarker, req.UserID, m.now().Unix(), suffix), nil
}

func (m *Mock) VerifySignature(context.Context, string, string, string) error { return nil }

func (m *Mock) VerifyWebhook(context.Context, []byte, string) error { return nil }

// FetchPayment reports a card payment without card details.
func (m *Mock) FetchPayment(_ context.Context, paymentRef string) (*PaymentDetails, error) {
	return &PaymentDetails{ID: paymentRef, Status: "captured", Method: "card", InvoiceID: m.InvoiceRef()}, nil
}

func (m *Mock) FetchSubscription(_ context.Context, ref string) (*SubscriptionDetails, error) {
	return &SubscriptionDetails{ID: ref, Status: "active"}, nil
}

func (m *Mock) FetchInvoice(_ context.Context, invoiceRef string) (*InvoiceDetails, error) {
	return &InvoiceDetails{ID: invoiceRef}, nil
}

func (m *Mock) Cancel(context.Context, string, bool) error { return nil }

func (m *Mock) InvoiceRef() string {
	return MockInvoiceRef(m.now())
}

// MockInvoiceRef synthesizes an external invoice reference for t.
func MockInvoiceRef(t time.Time) string {
	return fmt.Sprintf("inv%s%d", MockMarker, t.Unix())
}

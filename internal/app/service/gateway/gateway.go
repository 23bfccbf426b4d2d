// Package gateway abstracts the recurring-payments provider behind Client.
// A process builds exactly one Client at startup, live or mock, and injects
// it into the billing state machine.
package gateway

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/platform/razorpay"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/metrics"
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrGatewayTimeout   = errors.New("payment gateway timed out")
)

// MockMarker tags every reference synthesized by the mock gateway.
const MockMarker = "_mock_"

// IsMockRef reports whether ref was produced by the mock gateway.
func IsMockRef(ref string) bool {
	return strings.Contains(ref, MockMarker)
}

type Customer struct {
	UserID string
	Name   string
	Email  string
}

type SubscriptionRequest struct {
	UserID         string
	GatewayPlanID  string
	CustomerRef    string
	TotalCount     int
	Quantity       int
	CustomerNotify bool
	Notes          map[string]string
}

// CardSummary is the masked card descriptor returned by the provider.
type CardSummary struct {
	Last4    string
	Brand    string
	ExpMonth int
	ExpYear  int
}

type PaymentDetails struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
	Method      string
	InvoiceID   string
	Card        *CardSummary
}

type SubscriptionDetails struct {
	ID         string
	Status     string
	PlanID     string
	CustomerID string
	PaidCount  int
}

type InvoiceDetails struct {
	ID          string
	DownloadURL string
}

// Client is the capability set the billing state machine consumes. Calls
// other than signature checks are not assumed idempotent; callers check
// local state before repeating a create or cancel.
type Client interface {
	Mode() config.GatewayMode
	KeyID() string

	CreateCustomer(ctx context.Context, c Customer) (string, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error)
	// VerifySignature returns ErrInvalidSignature on mismatch. Any other
	// error means the check itself could not be performed.
	VerifySignature(ctx context.Context, ref, paymentRef, signature string) error
	VerifyWebhook(ctx context.Context, body []byte, signature string) error
	FetchPayment(ctx context.Context, paymentRef string) (*PaymentDetails, error)
	FetchSubscription(ctx context.Context, ref string) (*SubscriptionDetails, error)
	FetchInvoice(ctx context.Context, invoiceRef string) (*InvoiceDetails, error)
	Cancel(ctx context.Context, ref string, atCycleEnd bool) error
}

// New resolves the gateway mode once and returns the instrumented client.
func New(cfg *config.Config, log *zap.SugaredLogger, rec *metrics.Recorder) Client {
	var inner Client
	switch cfg.Gateway.ResolveMode() {
	case config.GatewayModeLive:
		inner = NewLive(razorpay.New(razorpay.Options{
			KeyID:         cfg.Gateway.KeyID,
			KeySecret:     cfg.Gateway.KeySecret,
			WebhookSecret: cfg.Gateway.WebhookSecret,
			BaseURL:       cfg.Gateway.BaseURL,
			Timeout:       cfg.Gateway.Timeout,
		}))
	default:
		inner = NewMock(cfg.Gateway.KeyID, nil)
	}
	log.Infow("payment gateway configured", "mode", inner.Mode(), "key_id", inner.KeyID())
	return Instrument(inner, log, rec)
}

var Module = fx.Options(
	fx.Provide(New),
)

package billing

import (
	"errors"

	"github.com/fatflowers/aspy/internal/app/service/gateway"
)

// Not found.
var (
	ErrPlanNotFound          = errors.New("plan not found")
	ErrInvoiceNotFound       = errors.New("invoice not found")
	ErrNoActiveSubscription  = errors.New("no active subscription found")
	ErrInvoiceURLUnavailable = errors.New("invoice URL not available, please contact support")
	ErrSubscriptionUnknown   = errors.New("no subscription for gateway reference")
)

// Validation.
var (
	ErrPlanNotConfigured   = errors.New("plan not configured for subscriptions, create a gateway plan first")
	ErrInvalidSignature    = gateway.ErrInvalidSignature
	ErrNotLinkedToGateway  = errors.New("subscription not linked to the payment gateway")
	ErrUpdateInTestMode    = errors.New("payment method update not available in test mode")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
)

// Upstream and persistence.
var (
	ErrSubscriptionCreationFailed = errors.New("failed to create subscription")
	ErrCancellationFailed         = errors.New("failed to cancel subscription")
	ErrPaymentProcessingFailed    = errors.New("failed to process subscription")
	ErrGatewayTimeout             = gateway.ErrGatewayTimeout
)

// ErrVerifyInProgress means another verification for the same user holds
// the lock.
var ErrVerifyInProgress = errors.New("another payment verification is in progress")

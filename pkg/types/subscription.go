package types

import "time"

// Enum values are stored and served uppercase. The initial migration
// declares the same sets as CHECK constraints.

type PlanType string

const (
	PlanTypeFree PlanType = "FREE"
	PlanTypePro  PlanType = "PRO"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
)

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type UserType string

const (
	UserTypeUser  UserType = "USER"
	UserTypeAdmin UserType = "ADMIN"
)

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonRegister SubscriptionChangeReason = "register"
	SubscriptionChangeReasonPurchase SubscriptionChangeReason = "purchase"
	SubscriptionChangeReasonCancel   SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonResume   SubscriptionChangeReason = "resume"
	SubscriptionChangeReasonExpire   SubscriptionChangeReason = "expire"
	SubscriptionChangeReasonWebhook  SubscriptionChangeReason = "webhook"
)

type PaymentProvider string

const (
	PaymentProviderRazorpay PaymentProvider = "razorpay"
)

// PlanConfig is one catalog entry from configuration. The catalog is synced
// into the plans table on startup, keyed by Type.
type PlanConfig struct {
	Name          string         `json:"name" mapstructure:"name"`
	Type          PlanType       `json:"type" mapstructure:"type"`
	Price         int64          `json:"price" mapstructure:"price"`
	Currency      string         `json:"currency" mapstructure:"currency"`
	Features      map[string]any `json:"features" mapstructure:"features"`
	GatewayPlanID string         `json:"gateway_plan_id" mapstructure:"gateway_plan_id"`
}

type UserSubscriptionInfo struct {
	PlanType          PlanType           `json:"plan_type"`
	Status            SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end"`
}

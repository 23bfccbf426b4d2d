package models

import (
	"time"

	"github.com/fatflowers/aspy/pkg/types"
)

// Subscription is one user's billing relationship. Several rows per user may
// exist historically; the schema does not enforce a single current row.
type Subscription struct {
	ID                    string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID                string                   `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	PlanID                string                   `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	Status                types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	GatewaySubscriptionID *string                  `gorm:"column:gateway_subscription_id;type:varchar(128)" json:"gateway_subscription_id,omitempty"`
	// Masked card summary, display only.
	CardLast4          *string    `gorm:"column:card_last4;type:varchar(4)" json:"card_last4,omitempty"`
	CardBrand          *string    `gorm:"column:card_brand;type:varchar(32)" json:"card_brand,omitempty"`
	CardExpMonth       *int       `gorm:"column:card_exp_month" json:"card_exp_month,omitempty"`
	CardExpYear        *int       `gorm:"column:card_exp_year" json:"card_exp_year,omitempty"`
	CurrentPeriodStart *time.Time `gorm:"column:current_period_start" json:"current_period_start"`
	// nil for the free plan, which never expires.
	CurrentPeriodEnd  *time.Time `gorm:"column:current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Valid reports whether the subscription currently grants access.
func (s *Subscription) Valid(now time.Time) bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		(s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now))
}

package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/aspy/pkg/types"
)

// Invoice bridges a subscription-creation attempt to its payment. Amount is in
// major units.
type Invoice struct {
	ID               string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID           string              `gorm:"column:user_id;type:uuid;not null;index:idx_invoice_user_ref,priority:1" json:"user_id"`
	SubscriptionID   *string             `gorm:"column:subscription_id;type:uuid" json:"subscription_id,omitempty"`
	PlanID           *string             `gorm:"column:plan_id;type:uuid" json:"plan_id,omitempty"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         string              `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status           types.InvoiceStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	GatewayRef       string              `gorm:"column:gateway_ref;type:varchar(128);not null;index:idx_invoice_user_ref,priority:2" json:"gateway_ref"`
	GatewayInvoiceID *string             `gorm:"column:gateway_invoice_id;type:varchar(128)" json:"gateway_invoice_id,omitempty"`
	InvoiceURL       *string             `gorm:"column:invoice_url;type:text" json:"invoice_url,omitempty"`
	PaymentID        *string             `gorm:"column:payment_id;type:uuid" json:"payment_id,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	PaidAt           *time.Time          `gorm:"column:paid_at" json:"paid_at,omitempty"`
}

func (Invoice) TableName() string {
	return "invoice"
}

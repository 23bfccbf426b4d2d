package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/fatflowers/aspy/pkg/types"
)

// Payment records funds received. After completion only SubscriptionID and
// InvoiceID may change.
type Payment struct {
	ID               string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID           string                `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	SubscriptionID   *string               `gorm:"column:subscription_id;type:uuid;index" json:"subscription_id,omitempty"`
	InvoiceID        *string               `gorm:"column:invoice_id;type:uuid" json:"invoice_id,omitempty"`
	Amount           decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         string                `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status           types.PaymentStatus   `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Provider         types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	GatewayPaymentID string                `gorm:"column:gateway_payment_id;type:varchar(128);not null;uniqueIndex" json:"gateway_payment_id"`
	GatewayRef       string                `gorm:"column:gateway_ref;type:varchar(128)" json:"gateway_ref"`
	GatewayInvoiceID *string               `gorm:"column:gateway_invoice_id;type:varchar(128)" json:"gateway_invoice_id,omitempty"`
	MethodDetails    datatypes.JSONMap     `gorm:"column:method_details;type:jsonb" json:"method_details"`
	CreatedAt        time.Time             `json:"created_at"`
	CompletedAt      *time.Time            `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Payment) TableName() string {
	return "payment"
}

// Method returns method_details.method, or "" when absent.
func (p *Payment) Method() string {
	if p == nil || p.MethodDetails == nil {
		return ""
	}
	m, _ := p.MethodDetails["method"].(string)
	return m
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "RECEIVED"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "HANDLED"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "HANDLE_FAILED"
)

// PaymentNotificationLog audits one gateway webhook delivery.
type PaymentNotificationLog struct {
	ID               string                       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider         string                       `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	Event            string                       `gorm:"column:event;type:varchar(64)" json:"event"`
	GatewayRef       string                       `gorm:"column:gateway_ref;type:varchar(128);index" json:"gateway_ref"`
	UserID           *string                      `gorm:"column:user_id;type:uuid" json:"user_id"`
	TraceID          string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	NotificationTime time.Time                    `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result           datatypes.JSONMap            `gorm:"column:result;type:jsonb" json:"result"`
	Status           PaymentNotificationLogStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }

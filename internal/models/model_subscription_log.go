package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/aspy/pkg/types"
)

// SubscriptionLog records changes to user subscriptions.
// Use case: troubleshooting.
type SubscriptionLog struct {
	ID             string                         `gorm:"column:id;type:uuid;primary_key"`
	UserID         string                         `gorm:"column:user_id;type:uuid;index:idx_subscription_log_user,priority:1;not null"`
	SubscriptionID string                         `gorm:"column:subscription_id;type:uuid;not null"`
	Reason         types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(32);not null"`
	// Before is nil when the subscription was created by the change.
	Before    datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb"`
	After     datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb"`
	Extra     datatypes.JSONMap                 `gorm:"column:extra;type:jsonb"`
	CreatedAt time.Time                         `gorm:"index:idx_subscription_log_user,priority:2"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}

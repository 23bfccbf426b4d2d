package models

import (
	"time"

	"github.com/fatflowers/aspy/pkg/types"
)

// SubscriptionDailySnapshot is a daily copy of each active subscription, used
// for historical reporting.
type SubscriptionDailySnapshot struct {
	ID                string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID            string                   `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_snapshot_user_date,priority:1" json:"user_id"`
	SnapshotDate      string                   `gorm:"column:snapshot_date;type:varchar(10);not null;uniqueIndex:idx_snapshot_user_date,priority:2" json:"snapshot_date"`
	SubscriptionID    string                   `gorm:"column:subscription_id;type:uuid;not null" json:"subscription_id"`
	PlanType          types.PlanType           `gorm:"column:plan_type;type:varchar(16);not null" json:"plan_type"`
	Status            types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CancelAtPeriodEnd bool                     `gorm:"column:cancel_at_period_end;not null" json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time               `gorm:"column:current_period_end" json:"current_period_end"`
	SnapshotCreatedAt time.Time                `gorm:"column:snapshot_created_at" json:"snapshot_created_at"`
}

func (SubscriptionDailySnapshot) TableName() string {
	return "subscription_daily_snapshot"
}

package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/aspy/pkg/types"
)

// Plan is a billable tier. Price is in the currency's minor unit.
type Plan struct {
	ID       string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name     string         `gorm:"column:name;type:varchar(64);not null;uniqueIndex" json:"name"`
	Type     types.PlanType `gorm:"column:type;type:varchar(16);not null;uniqueIndex" json:"type"`
	Price    int64          `gorm:"column:price;not null" json:"price"`
	Currency string         `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	// Features is display-only and has no fixed schema.
	Features      datatypes.JSONMap `gorm:"column:features;type:jsonb" json:"features"`
	GatewayPlanID *string           `gorm:"column:gateway_plan_id;type:varchar(128)" json:"gateway_plan_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}

// IsPaid reports whether the plan grants paid access.
func (p *Plan) IsPaid() bool {
	return p != nil && (p.Type == types.PlanTypePro || p.Price > 0)
}

package models

import (
	"time"

	"github.com/fatflowers/aspy/pkg/types"
)

type User struct {
	ID                string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Username          string         `gorm:"column:username;type:varchar(64);not null;uniqueIndex" json:"username"`
	Email             string         `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash      string         `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	UserType          types.UserType `gorm:"column:user_type;type:varchar(16);not null;default:USER" json:"user_type"`
	IsActive          bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	GatewayCustomerID *string        `gorm:"column:gateway_customer_id;type:varchar(128)" json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (User) TableName() string {
	return "app_user"
}

func (u *User) IsAdmin() bool {
	return u != nil && u.UserType == types.UserTypeAdmin
}

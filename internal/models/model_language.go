package models

import "time"

type Language struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(64);not null;uniqueIndex" json:"name"`
	Slug      string    `gorm:"column:slug;type:varchar(64);not null;uniqueIndex" json:"slug"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Language) TableName() string {
	return "language"
}

// CodeExecution is one run of user code.
type CodeExecution struct {
	ID         string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID     string    `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Language   string    `gorm:"column:language;type:varchar(64);not null" json:"language"`
	LanguageID *string   `gorm:"column:language_id;type:uuid" json:"language_id,omitempty"`
	Code       string    `gorm:"column:code;type:text;not null" json:"code"`
	Output     string    `gorm:"column:output;type:text" json:"output"`
	CreatedAt  time.Time `json:"created_at"`
}

func (CodeExecution) TableName() string {
	return "code_execution"
}

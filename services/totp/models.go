package totp

import (
	"gorm.io/gorm"
)

type TOTPSecret struct {
	gorm.Model
	UserID    uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	Secret    string `json:"-" gorm:"not null"`
	Confirmed bool   `json:"confirmed" gorm:"not null;default:false"`
}

type BackupCode struct {
	gorm.Model
	UserID uint   `json:"user_id" gorm:"index;not null"`
	Code   string `json:"-" gorm:"not null"`
}

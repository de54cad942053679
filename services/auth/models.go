package auth

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email            string     `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash     string     `json:"-" gorm:"not null;default:''"`
	TwoFactorEnabled bool       `json:"two_factor_enabled" gorm:"not null;default:false"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

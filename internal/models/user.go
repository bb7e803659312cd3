package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email             string `gorm:"uniqueIndex;not null"`
	Password          string `gorm:"not null"`
	Name              string `gorm:"not null"`
	Phone             string `gorm:"uniqueIndex;not null"`
	Role              string `gorm:"default:'user'"`
	Status            string `gorm:"default:'active'"`
	Address           string
	ReferredBy        *uint // user who referred this one, credited at first disbursal
	ReferralBonusPaid bool  `gorm:"default:false"`
	LastLoginAt       time.Time
}

// Roles recognised by the authorization layer.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

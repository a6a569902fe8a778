package database

import (
	"time"

	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	IsAdmin            bool   `gorm:"not null;default:false"`
	MustChangePassword bool   `gorm:"not null;default:false"`
}

// Subscription 表示用户的订阅记录。同一用户任意时刻至多一条 active。
// EndDate 为空表示不限期。
type Subscription struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"index;not null"`
	PlanType  string     `gorm:"size:32;not null"`
	Status    string     `gorm:"size:32;not null"`
	StartDate time.Time  `gorm:"not null"`
	EndDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

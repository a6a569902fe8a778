package subscription

import (
	"errors"
	"fmt"
	"time"
)

// PlanType 套餐类型，封闭枚举。
type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanPremium    PlanType = "premium"
	PlanEnterprise PlanType = "enterprise"
)

// Status 订阅状态，封闭枚举。
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusTrial     Status = "trial"
)

// ErrInvalidPlan 表示套餐类型不在枚举内。
var ErrInvalidPlan = errors.New("invalid plan type")

// Valid 判断套餐类型是否合法。
func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanPremium, PlanEnterprise:
		return true
	}
	return false
}

// IsPremium 判断套餐是否解除数量限制。
func (p PlanType) IsPremium() bool {
	return p == PlanPremium || p == PlanEnterprise
}

// ParsePlanType 校验并转换字符串。
func ParsePlanType(s string) (PlanType, error) {
	p := PlanType(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
	return p, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusCancelled, StatusTrial:
		return true
	}
	return false
}

// Subscription 是一条套餐分配记录。EndDate 为空表示不限期。
type Subscription struct {
	ID        uint       `json:"id"`
	UserID    uint       `json:"userId"`
	PlanType  PlanType   `json:"planType"`
	Status    Status     `json:"status"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

// CurrentAt 判断订阅在 now 时刻是否生效。
func (s Subscription) CurrentAt(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return s.EndDate == nil || s.EndDate.After(now)
}

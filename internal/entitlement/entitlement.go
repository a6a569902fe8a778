package entitlement

import (
	"time"

	"cvbuilder/internal/subscription"
)

// 免费档的数量边界：已有 CV 数小于 FreeSaveLimit 时可保存/下载/复制，
// 小于 FreeCreateLimit 时可新建（多出的一份仅可预览）。
const (
	FreeSaveLimit   = 2
	FreeCreateLimit = 3
)

// Check 是某一时刻用户可执行操作的集合。
type Check struct {
	IsPremium     bool                  `json:"isPremium"`
	PlanType      subscription.PlanType `json:"planType"`
	Status        subscription.Status   `json:"status"`
	EndDate       *time.Time            `json:"endDate"`
	CVCount       int                   `json:"cvCount"`
	CVLimit       *int                  `json:"cvLimit"`
	CanCreateCV   bool                  `json:"canCreateCV"`
	CanSaveCV     bool                  `json:"canSaveCV"`
	CanDownloadCV bool                  `json:"canDownloadCV"`
	CanDuplicate  bool                  `json:"canDuplicate"`
	// Degraded 为 true 表示读取失败后返回的默认值，而非真实的免费档结果。
	Degraded bool `json:"degraded,omitempty"`
}

// Compute 是纯函数：由套餐与已有 CV 数量计算权限。
func Compute(plan subscription.PlanType, status subscription.Status, endDate *time.Time, cvCount int) Check {
	premium := plan.IsPremium()
	c := Check{
		IsPremium:     premium,
		PlanType:      plan,
		Status:        status,
		EndDate:       endDate,
		CVCount:       cvCount,
		CanCreateCV:   premium || cvCount < FreeCreateLimit,
		CanSaveCV:     premium || cvCount < FreeSaveLimit,
		CanDownloadCV: premium || cvCount < FreeSaveLimit,
		CanDuplicate:  premium || cvCount < FreeSaveLimit,
	}
	if !premium {
		limit := FreeSaveLimit
		c.CVLimit = &limit
	}
	return c
}

// UnknownUserDefault 是读取订阅或数量失败时返回的默认权益：
// 免费档、数量 0、全部允许，cvLimit 为 1，并带 Degraded 标记。
func UnknownUserDefault() Check {
	limit := 1
	return Check{
		IsPremium:     false,
		PlanType:      subscription.PlanFree,
		Status:        subscription.StatusActive,
		CVCount:       0,
		CVLimit:       &limit,
		CanCreateCV:   true,
		CanSaveCV:     true,
		CanDownloadCV: true,
		CanDuplicate:  true,
		Degraded:      true,
	}
}

// Allows 按动作名查询权限，供服务层统一判断。
func (c Check) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return c.CanCreateCV
	case ActionSave:
		return c.CanSaveCV
	case ActionDownload:
		return c.CanDownloadCV
	case ActionDuplicate:
		return c.CanDuplicate
	}
	return false
}

// Action 是受套餐限制的操作。
type Action string

const (
	ActionCreate    Action = "create"
	ActionSave      Action = "save"
	ActionDownload  Action = "download"
	ActionDuplicate Action = "duplicate"
)

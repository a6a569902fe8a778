package service

import (
	"errors"
	"fmt"

	"cvbuilder/internal/cv"
	"cvbuilder/internal/entitlement"
)

var (
	// ErrNotFound 文档不存在或 id 格式非法。
	ErrNotFound = cv.ErrNotFound
	// ErrNotOwner 文档属于其他用户。
	ErrNotOwner = errors.New("cv belongs to another user")
	// ErrPDFNotReady 文档尚未生成 PDF。
	ErrPDFNotReady = cv.ErrPDFNotReady
)

// EntitlementError 表示当前套餐不允许该操作。
type EntitlementError struct {
	Action entitlement.Action
}

func (e *EntitlementError) Error() string {
	switch e.Action {
	case entitlement.ActionCreate:
		return fmt.Sprintf("cv limit reached on the free plan (%d), upgrade to premium to create more", entitlement.FreeCreateLimit)
	case entitlement.ActionDuplicate:
		return "duplicating is limited on the free plan, upgrade to premium"
	default:
		return fmt.Sprintf("%s is only allowed for your first %d cvs on the free plan, upgrade to premium", e.Action, entitlement.FreeSaveLimit)
	}
}

// AsEntitlementError 提取 EntitlementError。
func AsEntitlementError(err error) (*EntitlementError, bool) {
	var target *EntitlementError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

package access

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cvbuilder/internal/entitlement"
)

// FreeDocuments 是免费用户可完整使用（保存/下载）的前 N 份 CV。
const FreeDocuments = 2

// Access 是单份 CV 的权限。
type Access struct {
	CanEdit     bool `json:"canEdit"`
	CanSave     bool `json:"canSave"`
	CanDownload bool `json:"canDownload"`
}

// None 是不拥有或不存在的文档的权限。
func None() Access { return Access{} }

// Full 是付费用户的权限。
func Full() Access { return Access{CanEdit: true, CanSave: true, CanDownload: true} }

// DocumentRef 是计算下标所需的最小文档信息。
type DocumentRef struct {
	ID        string
	CreatedAt time.Time
}

// SortRefs 返回按 (CreatedAt, ID) 升序排列的副本，时间相同的文档按 id 排序以保证下标确定。
func SortRefs(refs []DocumentRef) []DocumentRef {
	out := append([]DocumentRef(nil), refs...)
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CreatedAt.Compare(out[j].CreatedAt); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IndexOf 返回 id 在已排序列表中的下标，找不到为 -1。
func IndexOf(sorted []DocumentRef, id string) int {
	for i, ref := range sorted {
		if ref.ID == id {
			return i
		}
	}
	return -1
}

// ForIndex 由下标与套餐计算权限。index < 0 表示未找到。
func ForIndex(index int, isPremium bool) Access {
	if index < 0 {
		return None()
	}
	if isPremium {
		return Full()
	}
	allowed := index < FreeDocuments
	return Access{CanEdit: true, CanSave: allowed, CanDownload: allowed}
}

// DocumentLister 列出用户拥有的文档。
type DocumentLister interface {
	ListRefs(ctx context.Context, ownerID uint) ([]DocumentRef, error)
}

// EntitlementReader 提供套餐信息。
type EntitlementReader interface {
	Check(ctx context.Context, userID uint) entitlement.Check
}

// Policy 按文档在创建顺序中的位置解析权限。
type Policy struct {
	docs DocumentLister
	ent  EntitlementReader
}

// NewPolicy 构造 Policy。
func NewPolicy(docs DocumentLister, ent EntitlementReader) *Policy {
	return &Policy{docs: docs, ent: ent}
}

// Resolve 返回 userID 对 docID 的权限。文档列表读取失败时返回 None 与错误。
func (p *Policy) Resolve(ctx context.Context, userID uint, docID string) (Access, error) {
	refs, err := p.docs.ListRefs(ctx, userID)
	if err != nil {
		return None(), fmt.Errorf("list documents: %w", err)
	}

	index := IndexOf(SortRefs(refs), docID)
	if index < 0 {
		return None(), nil
	}

	check := p.ent.Check(ctx, userID)
	return ForIndex(index, check.IsPremium), nil
}

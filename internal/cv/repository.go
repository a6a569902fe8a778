package cv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"cvbuilder/internal/access"
	"cvbuilder/internal/persistence"
)

var (
	// ErrNotFound 表示文档不存在。
	ErrNotFound = errors.New("cv not found")
	// ErrPDFNotReady 表示文档尚未生成 PDF。
	ErrPDFNotReady = errors.New("pdf not ready")
)

// Repository 通过容忍表结构差异的 Writer 读写 cvs 表。
type Repository struct {
	writer *persistence.Writer
	store  persistence.RowStore
}

// NewRepository 构造 Repository，读路径直接使用 writer 底层的 RowStore。
func NewRepository(writer *persistence.Writer) *Repository {
	return &Repository{writer: writer, store: writer.Store()}
}

// Create 插入新文档。调用方负责设置 ID、OwnerID 与时间戳。
func (r *Repository) Create(ctx context.Context, doc Document) (Document, error) {
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	row, err := ToRow(doc)
	if err != nil {
		return Document{}, err
	}
	stored, err := r.writer.Insert(ctx, Table, row)
	if err != nil {
		return Document{}, fmt.Errorf("create cv: %w", err)
	}
	return FromRow(stored)
}

// Update 整体写入可变字段；id、归属与创建时间从不重写。
func (r *Repository) Update(ctx context.Context, doc Document) (Document, error) {
	if !doc.Saved() {
		return Document{}, fmt.Errorf("update cv: %w", ErrNotFound)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	row, err := ToRow(doc)
	if err != nil {
		return Document{}, err
	}
	delete(row, ColID)
	delete(row, ColUserID)
	delete(row, ColCreatedAt)

	stored, err := r.writer.Update(ctx, Table, doc.ID, row)
	if err != nil {
		if persistence.IsNotFound(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("update cv: %w", err)
	}
	return FromRow(stored)
}

// Get 按 id 读取。
func (r *Repository) Get(ctx context.Context, id string) (Document, error) {
	rows, err := r.store.Select(ctx, Table, persistence.Query{
		Where: map[string]any{ColID: id},
		Limit: 1,
	})
	if err != nil {
		return Document{}, fmt.Errorf("get cv: %w", err)
	}
	if len(rows) == 0 {
		return Document{}, ErrNotFound
	}
	return FromRow(rows[0])
}

// ListByOwner 返回用户的文档，最近更新在前。
func (r *Repository) ListByOwner(ctx context.Context, ownerID uint) ([]Document, error) {
	rows, err := r.store.Select(ctx, Table, persistence.Query{
		Where: map[string]any{ColUserID: ownerID},
		Order: []persistence.OrderBy{{Column: ColUpdatedAt, Desc: true}, {Column: ColID}},
	})
	if err != nil {
		return nil, fmt.Errorf("list cvs: %w", err)
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// ListRefs 返回计算访问下标所需的 (id, created_at)。
func (r *Repository) ListRefs(ctx context.Context, ownerID uint) ([]access.DocumentRef, error) {
	rows, err := r.store.Select(ctx, Table, persistence.Query{
		Where:   map[string]any{ColUserID: ownerID},
		Columns: []string{ColID, ColCreatedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("list cv refs: %w", err)
	}
	refs := make([]access.DocumentRef, 0, len(rows))
	for _, row := range rows {
		id, err := toID(row[ColID])
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ColID, err)
		}
		created, err := cast.ToTimeE(scalar(row[ColCreatedAt]))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ColCreatedAt, err)
		}
		refs = append(refs, access.DocumentRef{ID: id, CreatedAt: created})
	}
	return refs, nil
}

// CountByOwner 统计用户拥有的文档数。
func (r *Repository) CountByOwner(ctx context.Context, ownerID uint) (int, error) {
	rows, err := r.store.Select(ctx, Table, persistence.Query{
		Where:   map[string]any{ColUserID: ownerID},
		Columns: []string{ColID},
	})
	if err != nil {
		return 0, fmt.Errorf("count cvs: %w", err)
	}
	return len(rows), nil
}

// Delete 物理删除。
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, Table, id); err != nil {
		if persistence.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete cv: %w", err)
	}
	return nil
}

// SetPDFObjectKey 记录最近一次生成的 PDF 对象 key，不刷新 updated_at。
func (r *Repository) SetPDFObjectKey(ctx context.Context, id, key string) error {
	_, err := r.writer.Update(ctx, Table, id, persistence.Row{ColPDFObjectKey: key})
	if err != nil {
		if persistence.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("record pdf key: %w", err)
	}
	return nil
}

// PDFObjectKey 返回已生成 PDF 的对象 key。列尚未迁移时视为未就绪。
func (r *Repository) PDFObjectKey(ctx context.Context, id string) (string, error) {
	rows, err := r.store.Select(ctx, Table, persistence.Query{
		Where:   map[string]any{ColID: id},
		Columns: []string{ColPDFObjectKey},
		Limit:   1,
	})
	if err != nil {
		if _, missing := persistence.AsSchemaError(err); missing {
			return "", ErrPDFNotReady
		}
		return "", fmt.Errorf("read pdf key: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	key, err := cast.ToStringE(scalar(rows[0][ColPDFObjectKey]))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", ColPDFObjectKey, err)
	}
	if key == "" {
		return "", ErrPDFNotReady
	}
	return key, nil
}

// Stamp 为新文档设置 id、归属与时间戳。
func Stamp(doc Document, id string, ownerID uint, now time.Time) Document {
	doc.ID = id
	doc.OwnerID = ownerID
	doc.CreatedAt = now.UTC()
	doc.UpdatedAt = now.UTC()
	return doc
}

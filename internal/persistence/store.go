package persistence

import (
	"context"
	"errors"
)

// ErrRowNotFound 表示 update/delete 未命中任何行。
var ErrRowNotFound = errors.New("row not found")

// Row 是扁平的列名到值映射，列名使用存储层命名（snake_case）。
type Row map[string]any

// Clone 返回浅拷贝，重试时只修改副本。
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// OrderBy 描述单列排序。
type OrderBy struct {
	Column string
	Desc   bool
}

// Query 是 Select 的过滤条件：等值匹配 + 排序 + 可选列投影。
type Query struct {
	Where   map[string]any
	Order   []OrderBy
	Columns []string
	Limit   int
}

// RowStore 是列集合可能落后于应用模型的行存储。
// 缺列时返回的错误应能被 AsSchemaError 识别。
type RowStore interface {
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, row Row) (Row, error)
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Delete(ctx context.Context, table, id string) error
}

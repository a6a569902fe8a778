// Package persistencetest 提供进程内 RowStore，供测试模拟迁移落后的数据库。
package persistencetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cvbuilder/internal/persistence"
)

// MemoryStore 是进程内 RowStore，可声明每张表的列集合以模拟迁移落后的数据库。
// 缺列时返回与 PostgREST 相同措辞的错误。
type MemoryStore struct {
	mu      sync.Mutex
	columns map[string]map[string]struct{}
	tables  map[string][]persistence.Row
}

// NewMemoryStore 构造空存储；未声明列集合的表接受任意列。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		columns: map[string]map[string]struct{}{},
		tables:  map[string][]persistence.Row{},
	}
}

// DefineTable 声明表的可用列。
func (m *MemoryStore) DefineTable(table string, columns ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	m.columns[table] = set
}

// AddColumn 模拟一次迁移。
func (m *MemoryStore) AddColumn(table, column string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.columns[table]; ok {
		set[column] = struct{}{}
	}
}

func (m *MemoryStore) Insert(_ context.Context, table string, row persistence.Row) (persistence.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkColumns(table, row); err != nil {
		return nil, err
	}
	stored := row.Clone()
	m.tables[table] = append(m.tables[table], stored)
	return stored.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, table, id string, row persistence.Row) (persistence.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkColumns(table, row); err != nil {
		return nil, err
	}
	for _, stored := range m.tables[table] {
		if fmt.Sprint(stored["id"]) != id {
			continue
		}
		for k, v := range row {
			stored[k] = v
		}
		return stored.Clone(), nil
	}
	return nil, persistence.ErrRowNotFound
}

func (m *MemoryStore) Select(_ context.Context, table string, q persistence.Query) ([]persistence.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for col := range q.Where {
		if err := m.checkColumn(table, col); err != nil {
			return nil, err
		}
	}

	var out []persistence.Row
	for _, stored := range m.tables[table] {
		if matches(stored, q.Where) {
			out = append(out, project(stored, q.Columns))
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compareValues(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[table]
	for i, stored := range rows {
		if fmt.Sprint(stored["id"]) == id {
			m.tables[table] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return persistence.ErrRowNotFound
}

func (m *MemoryStore) checkColumns(table string, row persistence.Row) error {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.checkColumn(table, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) checkColumn(table, column string) error {
	set, ok := m.columns[table]
	if !ok {
		return nil
	}
	if _, ok := set[column]; !ok {
		return fmt.Errorf("Could not find the '%s' column of '%s' in the schema cache", column, table)
	}
	return nil
}

func matches(row persistence.Row, where map[string]any) bool {
	for k, v := range where {
		if fmt.Sprint(row[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func project(row persistence.Row, columns []string) persistence.Row {
	if len(columns) == 0 {
		return row.Clone()
	}
	out := make(persistence.Row, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func compareValues(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

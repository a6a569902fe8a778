package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRowStore 基于 GORM 的无模型行存储，PostgreSQL 与 SQLite 通用。
type GormRowStore struct {
	db *gorm.DB
}

// NewGormRowStore 构造 GormRowStore。
func NewGormRowStore(db *gorm.DB) *GormRowStore {
	return &GormRowStore{db: db}
}

func (s *GormRowStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := s.db.WithContext(ctx).Table(table).Create(map[string]any(row)).Error; err != nil {
		return nil, Classify(err)
	}
	id, ok := row["id"]
	if !ok {
		return row.Clone(), nil
	}
	return s.selectByID(ctx, table, id)
}

func (s *GormRowStore) Update(ctx context.Context, table, id string, row Row) (Row, error) {
	res := s.db.WithContext(ctx).Table(table).Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).Updates(map[string]any(row))
	if res.Error != nil {
		return nil, Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrRowNotFound
	}
	return s.selectByID(ctx, table, id)
}

func (s *GormRowStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	tx := s.db.WithContext(ctx).Table(table)
	if len(q.Columns) > 0 {
		tx = tx.Select(q.Columns)
	}
	for col, val := range q.Where {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: col}, Value: val})
	}
	for _, o := range q.Order {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var found []map[string]any
	if err := tx.Find(&found).Error; err != nil {
		return nil, Classify(err)
	}

	rows := make([]Row, 0, len(found))
	for _, m := range found {
		rows = append(rows, Row(m))
	}
	return rows, nil
}

func (s *GormRowStore) Delete(ctx context.Context, table, id string) error {
	res := s.db.WithContext(ctx).Exec("DELETE FROM ? WHERE id = ?", clause.Table{Name: table}, id)
	if res.Error != nil {
		return fmt.Errorf("delete from %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (s *GormRowStore) selectByID(ctx context.Context, table string, id any) (Row, error) {
	rows, err := s.Select(ctx, table, Query{Where: map[string]any{"id": id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("reload %s: %w", table, ErrRowNotFound)
	}
	return rows[0], nil
}

// IsNotFound 兼容 GORM 与本包的未命中错误。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRowNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cvbuilder/internal/metrics"
)

// DefaultMaxAttempts 是单次写入的最大尝试次数。
const DefaultMaxAttempts = 5

// Writer 在列集合不确定的存储上写入扁平 payload：遇到可选列缺失时剥离后整体重试，
// 遇到必需列缺失时立即中止。
type Writer struct {
	store       RowStore
	maxAttempts int
	logger      *slog.Logger
}

// Option 配置 Writer。
type Option func(*Writer)

// WithMaxAttempts 设置尝试上限，非正数保持默认值。
func WithMaxAttempts(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithLogger 设置用于记录剥离列的 logger。
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter 构造 Writer。
func NewWriter(store RowStore, opts ...Option) *Writer {
	w := &Writer{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Store 暴露底层 RowStore 供读路径使用。
func (w *Writer) Store() RowStore { return w.store }

// MaxAttempts 返回配置的尝试上限。
func (w *Writer) MaxAttempts() int { return w.maxAttempts }

// Insert 插入一行，返回存储回读的记录。调用方的 payload 不会被修改。
func (w *Writer) Insert(ctx context.Context, table string, payload Row) (Row, error) {
	return w.write(ctx, "insert", table, payload, func(row Row) (Row, error) {
		return w.store.Insert(ctx, table, row)
	})
}

// Update 按 id 更新一行，语义同 Insert。
func (w *Writer) Update(ctx context.Context, table, id string, payload Row) (Row, error) {
	return w.write(ctx, "update", table, payload, func(row Row) (Row, error) {
		return w.store.Update(ctx, table, id, row)
	})
}

func (w *Writer) write(ctx context.Context, op, table string, payload Row, attempt func(Row) (Row, error)) (Row, error) {
	working := payload.Clone()
	var lastErr error

	for i := 1; i <= w.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s %s: %w", op, table, err)
		}

		row, err := attempt(working)
		if err == nil {
			return row, nil
		}

		schemaErr, ok := AsSchemaError(err)
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", op, table, err)
		}
		lastErr = schemaErr

		if IsEssential(schemaErr.Field) {
			return nil, &SchemaMismatchError{Table: table, Field: schemaErr.Field, Err: schemaErr}
		}

		if !stripField(working, schemaErr.Field) {
			return nil, fmt.Errorf("%s %s: column %q not in payload: %w", op, table, schemaErr.Field, schemaErr)
		}

		metrics.ObserveDroppedColumn(table, SnakeCase(schemaErr.Field))
		w.logger.Warn("dropped column missing from schema",
			slog.String("op", op),
			slog.String("table", table),
			slog.String("column", schemaErr.Field),
			slog.Int("attempt", i),
		)

		if len(working) == 0 {
			return nil, fmt.Errorf("%s %s: nothing left to write: %w", op, table, schemaErr)
		}
	}

	return nil, fmt.Errorf("%s %s: gave up after %d attempts: %w", op, table, w.maxAttempts, lastErr)
}

// stripField 删除字段的全部写法，返回是否删除了任何键。
func stripField(row Row, field string) bool {
	removed := false
	for _, v := range FieldVariants(field) {
		if _, ok := row[v]; ok {
			delete(row, v)
			removed = true
		}
	}
	return removed
}

// IsSchemaMismatch 判断错误是否需要运维介入。
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

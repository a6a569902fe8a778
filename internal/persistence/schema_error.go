package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSchemaMismatch 匹配所有无法自动修复的表结构差异。
var ErrSchemaMismatch = errors.New("schema mismatch")

// pgUndefinedColumn 是 PostgreSQL 的 undefined_column SQLSTATE。
const pgUndefinedColumn = "42703"

// missingColumnPatterns 按顺序尝试，第一个捕获到非停用词的模式胜出。
var missingColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`'(\w+)' column`),
	regexp.MustCompile(`"(\w+)" column`),
	regexp.MustCompile(`no column named (\w+)`),
	regexp.MustCompile(`no such column: (?:\w+\.)?(\w+)`),
	regexp.MustCompile(`column '(?:\w+\.)?(\w+)'`),
	regexp.MustCompile(`column "(?:\w+\.)?(\w+)"`),
	regexp.MustCompile(`column (?:\w+\.)?(\w+)`),
}

// missingSignals 区分“列不存在”与提到列名的其它错误（如非空约束）。
var missingSignals = []string{
	"does not exist",
	"could not find",
	"not found",
	"unknown column",
	"no such column",
	"no column named",
	"schema cache",
	"missing",
	"unknown field",
	"not in schema",
}

var fieldStopwords = map[string]struct{}{
	"of": {}, "named": {}, "does": {}, "is": {}, "in": {}, "not": {}, "the": {},
}

// essentialColumns 丢失即意味着孤儿记录或审计时间错误，永不剥离。
var essentialColumns = map[string]struct{}{
	"id":         {},
	"user_id":    {},
	"owner_id":   {},
	"created_at": {},
	"updated_at": {},
}

// SchemaError 表示存储报告某列不存在。
type SchemaError struct {
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("missing column %q", e.Field)
	}
	return fmt.Sprintf("missing column %q: %v", e.Field, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// SchemaMismatchError 表示缺失的列无法通过剥离修复，需要运维执行迁移。
type SchemaMismatchError struct {
	Table string
	Field string
	Err   error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf(
		"table %q is missing essential column %q: schema too different from expected, run migrations (cvbuilder-admin -migrate)",
		e.Table, e.Field,
	)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// ParseMissingColumn 从非结构化错误消息中提取缺失列名。
func ParseMissingColumn(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	signalled := false
	for _, s := range missingSignals {
		if strings.Contains(lower, s) {
			signalled = true
			break
		}
	}
	if !signalled {
		return "", false
	}
	return matchColumn(msg)
}

func matchColumn(msg string) (string, bool) {
	for _, re := range missingColumnPatterns {
		for _, m := range re.FindAllStringSubmatch(msg, -1) {
			field := m[1]
			if _, stop := fieldStopwords[strings.ToLower(field)]; stop {
				continue
			}
			return field, true
		}
	}
	return "", false
}

// AsSchemaError 识别缺列错误：已类型化的 SchemaError、PostgreSQL 42703 或可解析的消息。
func AsSchemaError(err error) (*SchemaError, bool) {
	if err == nil {
		return nil, false
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return se, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedColumn {
		field := pgErr.ColumnName
		if field == "" {
			field, _ = matchColumn(pgErr.Message)
		}
		if field != "" {
			return &SchemaError{Field: field, Err: err}, true
		}
	}
	if field, ok := ParseMissingColumn(err.Error()); ok {
		return &SchemaError{Field: field, Err: err}, true
	}
	return nil, false
}

// Classify 将缺列错误包装为 *SchemaError，其它错误原样返回。
func Classify(err error) error {
	if se, ok := AsSchemaError(err); ok {
		return se
	}
	return err
}

// IsEssential 判断列是否属于身份、归属或时间戳。
func IsEssential(field string) bool {
	_, ok := essentialColumns[SnakeCase(field)]
	return ok
}

// FieldVariants 返回原名、camelCase 与 snake_case 三种写法（去重）。
func FieldVariants(field string) []string {
	out := []string{field}
	for _, v := range []string{CamelCase(field), SnakeCase(field)} {
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// SnakeCase converts ownerId to owner_id; snake input is returned unchanged.
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CamelCase converts owner_id to ownerId; camel input is returned unchanged.
func CamelCase(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = b.Len() > 0
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		b.WriteRune(r)
	}
	return b.String()
}

package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMissingColumn(t *testing.T) {
	cases := []struct {
		name  string
		msg   string
		field string
		ok    bool
	}{
		{"postgrest schema cache", "Could not find the 'certifications' column of 'cvs' in the schema cache", "certifications", true},
		{"double quoted before column", `Could not find the "themeColor" column`, "themeColor", true},
		{"postgres undefined column", `ERROR: column "certifications" of relation "cvs" does not exist (SQLSTATE 42703)`, "certifications", true},
		{"sqlite insert", "table cvs has no column named certifications", "certifications", true},
		{"sqlite update", "no such column: pdf_object_key", "pdf_object_key", true},
		{"sqlite qualified", "no such column: cvs.pdf_object_key", "pdf_object_key", true},
		{"mysql", "Error 1054 (42S22): Unknown column 'projects' in 'field list'", "projects", true},
		{"bare column", "column languages does not exist", "languages", true},
		{"bare qualified column", "column cvs.certifications does not exist", "certifications", true},
		{"quoted then column missing", "'certifications' column missing", "certifications", true},
		{"column quoted missing from schema", "column 'certifications' missing from schema", "certifications", true},
		{"bare column is missing", "column certifications is missing", "certifications", true},
		{"unknown field", `unknown field "theme_color" in column theme_color`, "theme_color", true},
		{"essential id", "Could not find the 'id' column of 'cvs' in the schema cache", "id", true},
		{"not null violation", `null value in column "name" of relation "cvs" violates not-null constraint`, "", false},
		{"type mismatch", `column "skills" is of type jsonb but expression is of type text`, "", false},
		{"unrelated", "connection refused", "", false},
		{"empty", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			field, ok := ParseMissingColumn(tc.msg)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.field, field)
		})
	}
}

func TestAsSchemaError(t *testing.T) {
	t.Run("typed error passes through wrapping", func(t *testing.T) {
		err := fmt.Errorf("store: %w", &SchemaError{Field: "skills"})
		se, ok := AsSchemaError(err)
		require.True(t, ok)
		assert.Equal(t, "skills", se.Field)
	})

	t.Run("pg undefined column uses message when column name empty", func(t *testing.T) {
		err := &pgconn.PgError{Code: "42703", Message: `column "certifications" of relation "cvs" does not exist`}
		se, ok := AsSchemaError(err)
		require.True(t, ok)
		assert.Equal(t, "certifications", se.Field)
		assert.True(t, errors.Is(se, err))
	})

	t.Run("pg other code is not a schema error", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23502", Message: `null value in column "name" violates not-null constraint`}
		_, ok := AsSchemaError(err)
		assert.False(t, ok)
	})

	t.Run("nil", func(t *testing.T) {
		_, ok := AsSchemaError(nil)
		assert.False(t, ok)
	})
}

func TestIsEssential(t *testing.T) {
	for _, f := range []string{"id", "user_id", "userId", "ownerId", "owner_id", "createdAt", "created_at", "updatedAt", "updated_at"} {
		assert.True(t, IsEssential(f), f)
	}
	for _, f := range []string{"certifications", "theme_color", "themeColor", "pdf_object_key", "name"} {
		assert.False(t, IsEssential(f), f)
	}
}

func TestFieldVariants(t *testing.T) {
	assert.Equal(t, []string{"theme_color", "themeColor"}, FieldVariants("theme_color"))
	assert.Equal(t, []string{"themeColor", "theme_color"}, FieldVariants("themeColor"))
	assert.Equal(t, []string{"skills"}, FieldVariants("skills"))
}

func TestSchemaMismatchError(t *testing.T) {
	err := fmt.Errorf("save: %w", &SchemaMismatchError{Table: "cvs", Field: "id"})
	assert.True(t, IsSchemaMismatch(err))

	var sme *SchemaMismatchError
	require.True(t, errors.As(err, &sme))
	assert.Contains(t, sme.Error(), `"id"`)
	assert.Contains(t, sme.Error(), "run migrations")
}

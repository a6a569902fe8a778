package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations_OrderedAndAnnotated(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	prev := ""
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, strings.HasSuffix(name, ".sql"), name)
		assert.Greater(t, name, prev, "migrations must be strictly ordered")
		prev = name

		body, err := fs.ReadFile(migrations, "migrations/"+name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestEmbeddedMigrations_LaggingColumnsArriveLater(t *testing.T) {
	base, err := fs.ReadFile(migrations, "migrations/00002_create_cvs.sql")
	require.NoError(t, err)
	assert.NotContains(t, string(base), "certifications")
	assert.NotContains(t, string(base), "pdf_object_key")
}

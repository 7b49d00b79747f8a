package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedThenStats(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("AWS_S3_BUCKET", "")
	dir := t.TempDir()
	database := "badger://" + filepath.Join(dir, "db")
	staging := filepath.Join(dir, "staging")

	seedFile := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seedFile, []byte(`{
		"notes": [{"title": "Week 1", "url": "/uploads/1700000000000-abc12345-week1.pdf"}],
		"external_links": [{"title": "Docs", "url": "https://example.com"}]
	}`), 0o644))

	out, err := runCommand(t, "seed", seedFile, "--database", database, "--staging-dir", staging)
	require.NoError(t, err)
	var seeded resources.TreeStats
	require.NoError(t, json.Unmarshal([]byte(out), &seeded))
	assert.Equal(t, 2, seeded.TotalFiles)
	assert.Equal(t, 5, seeded.TotalFolders)

	out, err = runCommand(t, "stats", "--database", database, "--staging-dir", staging)
	require.NoError(t, err)
	var stats resources.TreeStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, seeded, stats)
}

func TestMigrateRequiresStore(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("AWS_S3_BUCKET", "")
	dir := t.TempDir()

	_, err := runCommand(t, "migrate", "--dry-run", "--database", "memory", "--staging-dir", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, resources.ErrStoreNotConfigured)
}

func TestSeedRejectsMissingFile(t *testing.T) {
	_, err := runCommand(t, "seed", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

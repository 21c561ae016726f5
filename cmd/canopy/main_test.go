package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/canopy/backend/memory"
	"github.com/jacentio/canopy/store"
)

// run executes one CLI invocation against a's backend and returns stdout.
func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := a.rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func memoryApp() *app {
	a := newApp()
	a.exec = memory.New()
	return a
}

func TestParseValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		in       string
		asString bool
		want     store.Value
	}{
		{"1", false, store.Int(1)},
		{"-42", false, store.Int(-42)},
		{"1.5", false, store.Float(1.5)},
		{"true", false, store.Bool(true)},
		{"false", false, store.Bool(false)},
		{"2024-01-02T03:04:05Z", false, store.Time(ts)},
		{"widget", false, store.String("widget")},
		{"NaN", false, store.String("NaN")},
		{"t", false, store.String("t")},
		{"", false, store.String("")},
		{"1", true, store.String("1")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseValue(tt.in, tt.asString)
			assert.True(t, store.Equal(tt.want, got), "want %#v, got %#v", tt.want, got)
		})
	}
}

func TestParseAssignments(t *testing.T) {
	props, err := parseAssignments([]string{"a=1", "name=x=y", "empty="}, false)
	require.NoError(t, err)
	assert.Equal(t, store.Int(1), props["a"])
	assert.Equal(t, store.String("x=y"), props["name"])
	assert.Equal(t, store.String(""), props["empty"])

	_, err = parseAssignments([]string{"novalue"}, false)
	assert.Error(t, err)

	_, err = parseAssignments([]string{"=1"}, false)
	assert.Error(t, err)

	_, err = parseAssignments([]string{"id=4"}, false)
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-1", "x", ""} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

// TestCommands_Lifecycle drives put, find, where, all and delete against
// one in-memory backend.
func TestCommands_Lifecycle(t *testing.T) {
	a := memoryApp()

	out, err := run(t, a, "put", "Sample", "a=1", "name=widget")
	require.NoError(t, err)
	var created entityJSON
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Sample", created.Kind)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "persisted", created.State)

	_, err = run(t, a, "put", "Sample", "a=2")
	require.NoError(t, err)
	_, err = run(t, a, "put", "Sample", "--string", "a=1")
	require.NoError(t, err)

	out, err = run(t, a, "find", "Sample", "1")
	require.NoError(t, err)
	var found entityJSON
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Equal(t, "widget", found.Properties["name"])
	assert.Equal(t, float64(1), found.Properties["a"])

	out, err = run(t, a, "where", "Sample", "a=1")
	require.NoError(t, err)
	var matches []entityJSON
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].ID)

	out, err = run(t, a, "where", "Sample", "--string", "a=1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, int64(3), matches[0].ID)

	_, err = run(t, a, "put", "Sample", "--id", "1", "a=9")
	require.NoError(t, err)
	out, err = run(t, a, "find", "Sample", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Equal(t, float64(9), found.Properties["a"])
	assert.NotContains(t, found.Properties, "name")

	out, err = run(t, a, "delete", "Sample", "2")
	require.NoError(t, err)
	assert.Equal(t, "deleted Sample/2\n", out)

	out, err = run(t, a, "all", "Sample")
	require.NoError(t, err)
	var all []entityJSON
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(3), all[1].ID)
}

func TestCommands_NotFound(t *testing.T) {
	a := memoryApp()

	_, err := run(t, a, "find", "Sample", "7")
	assert.ErrorContains(t, err, "Sample/7 not found")

	_, err = run(t, a, "delete", "Sample", "7")
	assert.ErrorContains(t, err, "Sample/7 not found")
}

func TestCommands_EmptyKindLists(t *testing.T) {
	a := memoryApp()

	out, err := run(t, a, "all", "Sample")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestCommands_Args(t *testing.T) {
	a := memoryApp()

	_, err := run(t, a, "find", "Sample")
	assert.Error(t, err)

	_, err = run(t, a, "where", "Sample")
	assert.Error(t, err)

	_, err = run(t, a, "put", "Sample", "--id", "-3", "a=1")
	assert.Error(t, err)
}

func TestCommands_PutRefusedByValidation(t *testing.T) {
	a := memoryApp()

	out, err := run(t, a, "put", "", "--id", "3", "a=1")
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.Empty(t, out)

	_, err = run(t, a, "put", "", "a=1")
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestVersion(t *testing.T) {
	out, err := run(t, newApp(), "version")
	require.NoError(t, err)
	assert.Equal(t, "canopy "+version+"\n", out)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	v, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, backendDynamoDB, v.GetString(cfgKeyBackend))

	cfg := dynamoConfig(v)
	assert.Equal(t, "canopy_entities", cfg.Table)
	assert.Equal(t, "canopy_counters", cfg.CounterTable)
	assert.Equal(t, 1, cfg.NumShards)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canopy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: http
endpoint: https://store.example.com
dataset: sandbox
dynamodb:
  table: entities
  shards: 16
`), 0o644))
	t.Setenv("CANOPY_DYNAMODB_TABLE", "from_env")

	v, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, backendHTTP, v.GetString(cfgKeyBackend))
	assert.Equal(t, "https://store.example.com", v.GetString(cfgKeyEndpoint))
	assert.Equal(t, "sandbox", v.GetString(cfgKeyDataset))

	cfg := dynamoConfig(v)
	assert.Equal(t, "from_env", cfg.Table)
	assert.Equal(t, 16, cfg.NumShards)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewExecutor_Backends(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	v, err := loadConfig("")
	require.NoError(t, err)

	v.Set(cfgKeyBackend, backendMemory)
	x, err := newExecutor(t.Context(), v, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Executor{}, x)

	v.Set(cfgKeyBackend, backendHTTP)
	_, err = newExecutor(t.Context(), v, logger)
	assert.Error(t, err, "http backend without endpoint")

	v.Set(cfgKeyBackend, "carrier-pigeon")
	_, err = newExecutor(t.Context(), v, logger)
	assert.ErrorContains(t, err, "unknown backend")
}

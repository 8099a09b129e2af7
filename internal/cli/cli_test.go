package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "compliance-core 1.2.3")
	assert.Contains(t, out.String(), "commit: abc123")
}

func TestHealthCommandPrintsReport(t *testing.T) {
	prevDriver, prevPath := config.DatabaseDriver, config.SQLitePath
	config.DatabaseDriver = "sqlite3"
	config.SQLitePath = filepath.Join(t.TempDir(), "db", "health.db")
	t.Cleanup(func() {
		config.DatabaseDriver, config.SQLitePath = prevDriver, prevPath
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"health"})

	err := root.Execute()
	if err != nil {
		require.True(t, errors.Is(err, ErrCriticalHealth), "unexpected error: %v", err)
	}

	var parsed healthOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &parsed))
	assert.NotEmpty(t, parsed.Report.Status)
	assert.Len(t, parsed.Status.Checks, 6)
	assert.InDelta(t, parsed.Status.Score, parsed.Report.Score, 0.001)
}

func TestUnknownCommandFails(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"frobnicate"})
	assert.Error(t, root.Execute())
}

func TestVerifyDBCommand(t *testing.T) {
	prevDriver, prevPath := config.DatabaseDriver, config.SQLitePath
	config.DatabaseDriver = "sqlite3"
	config.SQLitePath = filepath.Join(t.TempDir(), "verify.db")
	t.Cleanup(func() {
		config.DatabaseDriver, config.SQLitePath = prevDriver, prevPath
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"verify-db"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "database ok (sqlite3)\n", out.String())
}

func TestVerifyDBRejectsUnknownDriver(t *testing.T) {
	prevDriver := config.DatabaseDriver
	config.DatabaseDriver = "postgres"
	t.Cleanup(func() { config.DatabaseDriver = prevDriver })

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"verify-db"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pysugar/launcher-accounts/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db", dbPath, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestAccountsCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.FileEnv, filepath.Join(dir, "absent.yaml"))
	dbPath := filepath.Join(dir, "accounts.db")

	out, err := run(t, dbPath, "accounts", "default")
	require.NoError(t, err)
	assert.Contains(t, out, "no accounts")

	out, err = run(t, dbPath, "accounts", "offline", "Alex")
	require.NoError(t, err)
	assert.Contains(t, out, "Created offline account Alex")

	_, err = run(t, dbPath, "accounts", "offline", "Steve")
	require.NoError(t, err)

	out, err = run(t, dbPath, "accounts", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	var alexID string
	for _, l := range lines[1:] {
		fields := strings.Fields(l)
		if strings.HasPrefix(l, "*") {
			assert.Equal(t, "Steve", fields[2])
		} else {
			alexID = fields[0]
		}
	}
	require.NotEmpty(t, alexID)

	_, err = run(t, dbPath, "accounts", "use", alexID)
	require.NoError(t, err)
	out, err = run(t, dbPath, "accounts", "default")
	require.NoError(t, err)
	assert.Equal(t, alexID, strings.TrimSpace(out))

	_, err = run(t, dbPath, "accounts", "remove", alexID)
	require.NoError(t, err)
	out, err = run(t, dbPath, "accounts", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Alex")

	_, err = run(t, dbPath, "accounts", "use", "not-a-uuid")
	assert.Error(t, err)
}

func TestVersionSkipsInit(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "unused.db"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration")
	_, err = os.Stat(target)
	require.NoError(t, err)

	_, err = runCLI(t, "config", "init", "--path", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI(t, "config", "init", "--path", target, "--overwrite")
	require.NoError(t, err)

	out, err = runCLI(t, "--config", target, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(target, []byte("[logging]\nformat = \"xml\"\n"), 0o600))

	_, err := runCLI(t, "--config", target, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestHashPassword(t *testing.T) {
	out, err := runCLI(t, "config", "hash-password", "hunter2")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter3")))
}

func TestReadSnapshotRejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"communities":[{"schema_version":2}]}`), 0o600))
	_, err := readSnapshot(bad)
	assert.Error(t, err)

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"communities":[{"schema_version":2,"community_id":7,"owner_ids":[1]}]}`), 0o600))
	snap, err := readSnapshot(good)
	require.NoError(t, err)
	require.Len(t, snap.Communities, 1)
	assert.Equal(t, uint64(7), snap.Communities[0].CommunityID)
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", dbPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"serve"}, {"sweep"},
		{"catalog", "list"}, {"catalog", "add"}, {"catalog", "delete"}, {"catalog", "import"},
		{"family", "create"}, {"family", "list"}, {"family", "add-member"}, {"family", "new-member"},
		{"family", "join"}, {"family", "remove-member"},
		{"family", "start"}, {"family", "show"},
		{"admin", "hash-token"}, {"admin", "vapid-keys"}, {"admin", "refresh"}, {"admin", "skip"},
		{"backup", "run"}, {"backup", "list"}, {"backup", "restore"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "db", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestFamilyLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, db, "catalog", "add", "What made you laugh today?")
	require.NoError(t, err)
	assert.Contains(t, out, "at position 1")

	out, err = run(t, db, "family", "create", "Choi")
	require.NoError(t, err)
	assert.Equal(t, "created family 1\n", out)

	_, err = run(t, db, "family", "add-member", "1", "Dad", "--role", "father", "--birth-year", "1979")
	require.NoError(t, err)
	_, err = run(t, db, "family", "add-member", "1", "Kid", "--birth-year", "2013")
	require.NoError(t, err)

	_, err = run(t, db, "family", "add-member", "1", "Cat", "--role", "pet", "--birth-year", "2020")
	assert.ErrorContains(t, err, "role must be")

	_, err = run(t, db, "family", "start", "1")
	require.NoError(t, err)

	out, err = run(t, db, "family", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "family 1: Choi (started: true)")
	assert.Contains(t, out, "Dad")
	assert.Contains(t, out, "child")

	out, err = run(t, db, "sweep")
	require.NoError(t, err)
	assert.JSONEq(t, `{"checked":1,"advanced":0,"failed":0}`, out)

	out, err = run(t, db, "admin", "skip", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "round 1 question 1")

	// A one-question catalog wraps into the next round.
	out, err = run(t, db, "admin", "refresh", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "round 2 question 1")

	_, err = run(t, db, "catalog", "delete", "1")
	assert.Error(t, err, "assigned questions cannot be deleted")
}

func TestMemberJoinsFamily(t *testing.T) {
	db := filepath.Join(t.TempDir(), "join.db")

	out, err := run(t, db, "family", "list")
	require.NoError(t, err)
	assert.Equal(t, "no families\n", out)

	_, err = run(t, db, "family", "create", "Park")
	require.NoError(t, err)

	out, err = run(t, db, "family", "new-member", "Grandma", "--role", "mother", "--birth-year", "1950")
	require.NoError(t, err)
	assert.Equal(t, "created member 1\n", out)

	out, err = run(t, db, "family", "show", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "Grandma")

	_, err = run(t, db, "family", "join", "1", "2")
	assert.ErrorContains(t, err, "family 2 not found")
	_, err = run(t, db, "family", "join", "9", "1")
	assert.ErrorContains(t, err, "member 9 not found")

	out, err = run(t, db, "family", "join", "1", "1")
	require.NoError(t, err)
	assert.Equal(t, "member 1 joined family 1\n", out)

	out, err = run(t, db, "family", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Grandma")

	out, err = run(t, db, "family", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Park")
	assert.Contains(t, out, "started: false")
}

func TestHashToken(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("from-stdin\n"))
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "unused.db"), "admin", "hash-token"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("from-stdin")))
}

func TestVAPIDKeys(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "unused.db"), "admin", "vapid-keys")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "FAMILYQ_PUSH_VAPID_PUBLIC_KEY="))
	assert.True(t, strings.HasPrefix(lines[1], "FAMILYQ_PUSH_VAPID_PRIVATE_KEY="))
}

func TestBackupRequiresConfig(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "b.db"), "backup", "list")
	assert.ErrorContains(t, err, "backup not configured")
}

func TestConfigFileFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "familyq.yaml")
	dbPath := filepath.Join(dir, "from-config.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("db_path: "+dbPath+"\ntimezone: UTC\n"), 0o644))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "family", "create", "Yoon"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database should be created at the configured path")
}

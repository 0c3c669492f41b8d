package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, dataPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--data-path", dataPath,
		"--store-backend", "sqlite",
		"--app-id", "stone-wall-books-test",
		"--env-file", filepath.Join(dataPath, "missing.env"),
		"--log-level", "error",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "librarian version dev")
}

func TestLibrarianWorkflow(t *testing.T) {
	dataPath := t.TempDir()
	creds := []string{"--email", "desk@example.com", "--password", "hunter22hunter"}

	out, err := runCLI(t, dataPath, append([]string{"account", "add"}, creds...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Created account desk@example.com")

	out, err = runCLI(t, dataPath, append([]string{"claim"}, creds...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "desk@example.com is now the librarian")

	csvPath := filepath.Join(dataPath, "catalog.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"Item number,Title,eBay category 1 name,Start price\n"+
			"1001,The Sea Around Us,Nature,12.50\n"), 0o600))

	_, err = runCLI(t, dataPath, append([]string{"import", csvPath}, creds...)...)
	require.Error(t, err, "import without --yes must be refused")

	out, err = runCLI(t, dataPath, append([]string{"import", csvPath, "--yes"}, creds...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 books")

	backup := filepath.Join(dataPath, "backup.json")
	_, err = runCLI(t, dataPath, "export", "--out", backup)
	require.NoError(t, err)
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Contains(t, string(data), "The Sea Around Us")
	assert.Contains(t, string(data), "desk@example.com")

	out, err = runCLI(t, dataPath, append([]string{"reset", "--yes"}, creds...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Store reset to defaults")
}

func TestWrongPasswordIsRejected(t *testing.T) {
	dataPath := t.TempDir()

	_, err := runCLI(t, dataPath, "account", "add", "--email", "desk@example.com", "--password", "hunter22hunter")
	require.NoError(t, err)

	_, err = runCLI(t, dataPath, "reset", "--yes", "--email", "desk@example.com", "--password", "wrong-password")
	require.Error(t, err)
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/testutil"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "offchain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestServe_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
network:
  hrp: tdm
store:
  path: `+filepath.Join(dir, "node.db")+`
`)

	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "vasp.address is required")
}

func TestServe_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServe_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	alice := testutil.Alice()
	dbPath := filepath.Join(dir, "node.db")
	path := writeConfig(t, dir, fmt.Sprintf(`
vasp:
  address: %s
  compliance_key: "%s"
server:
  listen: 127.0.0.1:0
store:
  path: %s
network:
  hrp: tdm
`, alice.Account(0), jws.SeedHex(alice.Key), dbPath))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--config", path})
	require.NoError(t, cmd.ExecuteContext(ctx))

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "store should be created")
}

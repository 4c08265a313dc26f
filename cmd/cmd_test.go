// -- cmd/cmd_test.go --
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipshanrana/clipfetch/internal/observability"
)

func resetState(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	observability.ResetForTest()
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
		observability.ResetForTest()
	})
}

func TestVersionCommand(t *testing.T) {
	resetState(t)

	root := NewRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, Version, strings.TrimSpace(out.String()))
}

func TestRootHelp(t *testing.T) {
	resetState(t)

	root := NewRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"--help"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "serve")
	assert.Contains(t, out.String(), "version")
}

func TestInitializeConfigMissingFileIsFine(t *testing.T) {
	resetState(t)

	require.NoError(t, initializeConfig())
	// Defaults are in place after the bootstrap.
	assert.Equal(t, ":8080", viper.GetString("server.addr"))
}

func TestInitializeConfigReadsFile(t *testing.T) {
	resetState(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0o644))
	cfgFile = path

	require.NoError(t, initializeConfig())
	assert.Equal(t, ":9999", viper.GetString("server.addr"))
}

func TestInitializeConfigRejectsMalformedFile(t *testing.T) {
	resetState(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not closed"), 0o644))
	cfgFile = path

	assert.Error(t, initializeConfig())
}

//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"migrate", "ingest", "clean", "flags", "metrics", "runs", "serve", "demo"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "datapipe", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestIngestCommand_Flags(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("source")
	require.NotNil(t, flag, "ingest command should have --source flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestCleanCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"limit", "rules"} {
		flag := cleanCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "clean should have --%s flag", flagName)
	}
}

func TestFlagsCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"limit", "out"} {
		flag := flagsCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "flags should have --%s flag", flagName)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "lookup", "progress", "runs", "cycles", "auth", "cache"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sheet-enricher", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"max-cycles", "row-start", "batch-size", "item-timeout"} {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "run command should have --%s flag", name)
		assert.Equal(t, "0", flag.DefValue)
	}
}

func TestProgressCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range progressCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"show", "set", "reset"} {
		assert.True(t, names[name], "expected progress subcommand %q", name)
	}
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)

	flag = runsCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
}

func TestLookupCommand_RequiresName(t *testing.T) {
	assert.Error(t, lookupCmd.Args(lookupCmd, nil))
	assert.NoError(t, lookupCmd.Args(lookupCmd, []string{"Acme", "Corp"}))
}

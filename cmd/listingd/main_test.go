package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsSetupErrors(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", "")
	t.Setenv("ADMIN_PASSWORD", "secret")

	t.Setenv("MYSQL_DSN", "")
	err := run("bump-tick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")

	t.Setenv("MYSQL_DSN", "not a dsn")
	err = run("bump-tick")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connect")
}

func TestCommandsAreKnown(t *testing.T) {
	for _, c := range []string{"serve", "ingest", "bump-tick", "expiry-sweep"} {
		assert.True(t, commands[c], c)
	}
	assert.False(t, commands["migrate"])
}

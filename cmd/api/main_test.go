package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "aspy.yaml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o600))
	return file
}

func TestRun_CheckConfig(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")

	ok := writeConfig(t, "env: prod\nauth:\n  jwt_secret: s3cret\ngateway:\n  mode: mock\n")
	assert.Equal(t, 0, run(ok, true))
	assert.Equal(t, ok, os.Getenv("APP_CONFIG_FILE"))

	bad := writeConfig(t, "env: prod\ngateway:\n  mode: live\n")
	assert.Equal(t, 1, run(bad, true))
}

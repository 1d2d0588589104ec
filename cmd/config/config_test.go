package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/defistate/liquidity-converter-go/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadServerConfig_Sample(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join("..", "..", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8546", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.True(t, cfg.EnableSandboxMethods)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, *sandbox.DefaultScenario(), cfg.Scenario, "the sample file mirrors the built-in scenario")
}

func TestLoadServerConfig_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		content     string
		expectedErr string
	}{
		{name: "Unknown Key", content: "listenAddr: x\nlistenPort: 1\n", expectedErr: "field listenPort not found"},
		{name: "Bad Address", content: "scenario:\n  converter:\n    address: \"0x12\"\n", expectedErr: "failed to parse config file"},
		{name: "Empty Scenario", content: "listenAddr: \"127.0.0.1:1\"\n", expectedErr: "at least one token"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadServerConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}

	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestServerConfig_Defaults(t *testing.T) {
	cfg := &ServerConfig{Scenario: *sandbox.DefaultScenario()}
	require.NoError(t, cfg.validate())
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, uint(DefaultStreamBufferSize), cfg.StreamBufferSize)

	cfg.MetricsAddr = cfg.ListenAddr
	assert.ErrorContains(t, cfg.validate(), "metricsAddr must differ")
}

func TestLoadConsoleConfig(t *testing.T) {
	cfg, err := LoadConsoleConfig(writeConfig(t, "rpcURL: \"ws://127.0.0.1:8546\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8546", cfg.RPCURL)
	assert.Equal(t, uint(DefaultStreamBufferSize), cfg.BufferSize)

	_, err = LoadConsoleConfig(writeConfig(t, "bufferSize: 5\n"))
	assert.ErrorContains(t, err, "rpcURL is required")
}

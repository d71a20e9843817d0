package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, "device.key", c.DeviceFile)
	assert.Equal(t, 3*time.Second, c.SyncInterval)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.Equal(t, 100, c.ReencryptionBatchSize)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "127.0.0.1:50051", cfg.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, cfg.SyncInterval)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"server_endpoint_addr": "json:1",
		"sync_interval":        "7s",
	})
	os.Args = []string{"testbin", "-c", path, "-a", "flag:2"}

	cfg := LoadConfig()

	assert.Equal(t, "flag:2", cfg.ServerEndpointAddr)
	assert.Equal(t, 7*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

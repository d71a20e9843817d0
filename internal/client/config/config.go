package config

import "time"

// Config holds runtime settings for the sync client.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - DataDir: directory holding the local encrypted database.
//   - DeviceFile: path of the passphrase-protected device key file.
//   - SyncInterval: how often the client pings, drains its mailbox and syncs.
//   - RequestTimeout: deadline applied to each backend round trip.
//   - ReencryptionBatchSize: vlobs handled per reencryption batch.
type Config struct {
	ServerEndpointAddr    string
	DataDir               string
	DeviceFile            string
	SyncInterval          time.Duration
	RequestTimeout        time.Duration
	ReencryptionBatchSize int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DataDir = "."
	c.DeviceFile = "device.key"
	c.SyncInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.ReencryptionBatchSize = 100
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

package config

import (
	"encoding/json"
	"os"

	"github.com/gurjot03/parsec-cloud/internal/flagx"
	"github.com/gurjot03/parsec-cloud/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell "absent" apart from a zero value.
type JsonConfig struct {
	ServerEndpointAddr    *string         `json:"server_endpoint_addr"`
	DataDir               *string         `json:"data_dir"`
	DeviceFile            *string         `json:"device_file"`
	SyncInterval          *timex.Duration `json:"sync_interval"`
	RequestTimeout        *timex.Duration `json:"request_timeout"`
	ReencryptionBatchSize *int            `json:"reencryption_batch_size"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without either flag it does nothing. Read or decode
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != nil {
		cfg.ServerEndpointAddr = *jc.ServerEndpointAddr
	}
	if jc.DataDir != nil {
		cfg.DataDir = *jc.DataDir
	}
	if jc.DeviceFile != nil {
		cfg.DeviceFile = *jc.DeviceFile
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.ReencryptionBatchSize != nil {
		cfg.ReencryptionBatchSize = *jc.ReencryptionBatchSize
	}
}

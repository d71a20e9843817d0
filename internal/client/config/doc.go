// Package config loads runtime configuration for the sync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-d string   data directory for the local database
//	-k string   device key file
//	-i int      sync interval (seconds)
//	-t int      backend request timeout (seconds)
//	-b int      reencryption batch size
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "data_dir": "/var/lib/parsec",
//	  "device_file": "/var/lib/parsec/device.key",
//	  "sync_interval": "3s",
//	  "request_timeout": "10s",
//	  "reencryption_batch_size": 100
//	}
//
// Fields missing from the JSON file keep their previous value.
package config

package config

import (
	"flag"
	"os"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// os.Args is filtered with flagx.FilterArgs first so that flags owned by
// other components do not make parsing fail.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-i", "-t", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DeviceFile, "k", cfg.DeviceFile, "device key file")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.IntVar(&cfg.ReencryptionBatchSize, "b", cfg.ReencryptionBatchSize, "reencryption batch size")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}

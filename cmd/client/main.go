package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/gurjot03/parsec-cloud/internal/client/app"
	"github.com/gurjot03/parsec-cloud/internal/client/client"
	"github.com/gurjot03/parsec-cloud/internal/client/config"
	"github.com/gurjot03/parsec-cloud/internal/client/device"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories/manifests"
	"github.com/gurjot03/parsec-cloud/internal/client/repositories/usercache"
	"github.com/gurjot03/parsec-cloud/internal/client/services"
	"github.com/gurjot03/parsec-cloud/internal/client/trust"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/filex"
	"github.com/gurjot03/parsec-cloud/internal/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.LoadConfig()
	var logger logging.Logger = logging.NewConsoleLogger(slog.LevelInfo)

	fmt.Fprint(os.Stderr, "Device passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}

	d, err := device.LoadKeyFile(cfg.DeviceFile, passphrase)
	common.WipeByteArray(passphrase)
	if err != nil {
		return err
	}
	logger = logger.With("device", d.DeviceID)

	dataDir, err := filex.EnsureDir(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	db, err := repositories.InitDatabase(ctx, filepath.Join(dataDir, "local.db"))
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	backend, err := client.NewGRPCClient(cfg.ServerEndpointAddr, d.DeviceID, d.SigningKey, cfg.RequestTimeout)
	if err != nil {
		return err
	}
	defer backend.Close()

	resolver := trust.NewResolver(d, backend, usercache.NewSQLiteRepository(db), logger)
	store := manifests.NewSQLiteRepository(db, d.UserManifestID, d.LocalSymkey)
	fs := services.NewUserFS(d, backend, store, resolver,
		services.WithLogger(logger),
		services.WithBatchSize(cfg.ReencryptionBatchSize),
		services.WithObserver(services.ObserverFunc(func(e services.Event) {
			logger.Debug(ctx, "event", "type", e.Type, "id", e.ID)
		})),
	)

	app.NewApp(cfg, logger, backend, fs).Run(ctx)
	return nil
}

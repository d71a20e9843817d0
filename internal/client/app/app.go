// Package app drives the sync engine in the background: it watches backend
// reachability and, while online, drains the mailbox and syncs the user
// manifest on every tick.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gurjot03/parsec-cloud/internal/client/config"
	"github.com/gurjot03/parsec-cloud/internal/client/services"
	"github.com/gurjot03/parsec-cloud/internal/common"
	"github.com/gurjot03/parsec-cloud/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Engine is the part of services.UserFS the runner drives.
type Engine interface {
	ProcessLastMessages(ctx context.Context) ([]services.MessageError, error)
	Sync(ctx context.Context) error
}

type App struct {
	config *config.Config
	logger logging.Logger
	pinger Pinger
	engine Engine

	mu   sync.Mutex
	mode Mode
}

func NewApp(c *config.Config, logger logging.Logger, pinger Pinger, engine Engine) *App {
	return &App{config: c, logger: logger, pinger: pinger, engine: engine, mode: ModeOffline}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.logger.Info(ctx, "switched mode", "mode", mode)
	}
}

func (a *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run ticks until ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	a.initSignalHandler(cancelFunc)

	a.logger.Info(ctx, "starting sync loop", "interval", a.config.SyncInterval)

	a.Tick(ctx)

	ticker := time.NewTicker(a.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Tick(ctx)
		case <-ctx.Done():
			a.logger.Info(context.WithoutCancel(ctx), "sync loop stopped")
			return
		}
	}
}

// Tick runs one round: ping, then messages and sync when online.
func (a *App) Tick(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	err := a.pinger.Ping(pingCtx)
	cancel()
	if err != nil {
		a.setMode(ctx, ModeOffline)
		return
	}
	a.setMode(ctx, ModeOnline)

	failed, err := a.engine.ProcessLastMessages(ctx)
	for _, f := range failed {
		a.logger.Warn(ctx, "message rejected", "offset", f.Offset, "sender", f.Sender, "error", f.Err)
	}
	if a.handle(ctx, "process messages", err) {
		return
	}

	a.handle(ctx, "sync", a.engine.Sync(ctx))
}

// handle logs err and reports whether the round must stop.
func (a *App) handle(ctx context.Context, step string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, common.ErrBackendOffline):
		a.setMode(ctx, ModeOffline)
	case errors.Is(err, context.Canceled):
	default:
		a.logger.Error(ctx, step+" failed", "error", err)
	}
	return true
}

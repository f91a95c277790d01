// Package app composes the extraction pipeline with fx: logger, event bus,
// process lock, export ledger, transport, source, sink, and coordinator.
package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tgnotion/tgnotion/internal/bus"
	"github.com/tgnotion/tgnotion/internal/config"
	"github.com/tgnotion/tgnotion/internal/ledger"
	"github.com/tgnotion/tgnotion/internal/lock"
	"github.com/tgnotion/tgnotion/internal/logging"
	"github.com/tgnotion/tgnotion/internal/session"
	"github.com/tgnotion/tgnotion/internal/sink"
	"github.com/tgnotion/tgnotion/internal/source"
	intsync "github.com/tgnotion/tgnotion/internal/sync"
	"github.com/tgnotion/tgnotion/internal/telegram"
	"github.com/tgnotion/tgnotion/internal/transport"
)

// Params holds the resolved configuration and interactive prompts passed to
// the fx module. The prompts come from the CLI layer; PasswordPrompt may be
// nil for accounts without 2FA.
type Params struct {
	Config         *config.Config
	CodePrompt     func(ctx context.Context) (string, error)
	PasswordPrompt func(ctx context.Context) (string, error)
}

// Module returns the fx module for the pipeline, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("pipeline",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideLedger,
			provideTransport,
			provideSource,
			provideSink,
			provideCoordinator,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger() (*zap.Logger, error) {
	if err := session.EnsureDirs(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()[:8]
	return logging.New(session.LogPath(), runID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring process lock", zap.String("path", session.LockPath()))
	l, err := lock.Acquire(session.LockPath())
	if err != nil {
		return nil, err
	}
	logger.Info("process lock acquired")
	return l, nil
}

func provideLedger(logger *zap.Logger) (*ledger.DB, error) {
	path := session.LedgerPath()
	db, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("ledger migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("ledger migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("ledger initialized", zap.String("path", path))
	return db, nil
}

func provideTransport(p Params, logger *zap.Logger) *telegram.Client {
	return telegram.New(telegram.Config{
		APIID:          p.Config.Telegram.APIID,
		APIHash:        p.Config.Telegram.APIHash,
		Phone:          p.Config.Telegram.Phone,
		SessionPath:    session.FilePath(),
		CodePrompt:     p.CodePrompt,
		PasswordPrompt: p.PasswordPrompt,
	}, logger)
}

func provideSource(tc *telegram.Client, logger *zap.Logger) *source.Client {
	var tr transport.Client = tc
	return source.New(tr, logger)
}

func provideSink(p Params, logger *zap.Logger) *sink.Client {
	return sink.New(sink.Config{
		Token:        p.Config.Notion.Token,
		DatabaseID:   p.Config.Notion.DatabaseID,
		ParentPageID: p.Config.Notion.ParentPageID,
	}, logger)
}

func provideCoordinator(src *source.Client, snk *sink.Client, led *ledger.DB, b *bus.Bus, logger *zap.Logger) *intsync.Coordinator {
	return intsync.New(src, snk, led, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, tc *telegram.Client, led *ledger.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			tc.Disconnect()
			if err := led.Close(); err != nil {
				logger.Warn("error closing ledger", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("pipeline stopped")
			return nil
		},
	})
}

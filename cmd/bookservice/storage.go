package main

import (
	"context"
	"fmt"
	"log/slog"

	"bookservice/internal/book"
	"bookservice/internal/config"
	"bookservice/internal/history"
	"bookservice/internal/server"
	"bookservice/internal/store"
)

type storage struct {
	books   book.Repository
	history history.Store
	pinger  server.Pinger
	close   func() error
}

// openStorage wires the repositories for the configured driver.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on exit")
		return storage{
			books:   book.NewMemoryRepository(),
			history: history.NewMemoryStore(),
			pinger:  server.PingerFunc(func(context.Context) error { return nil }),
			close:   func() error { return nil },
		}, nil
	}

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, store.Options{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return storage{}, err
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			db.Close()
			return storage{}, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("database schema is up to date", "driver", cfg.DatabaseDriver)
	}

	books, err := store.NewBookStore(db, store.WithLogger(logger))
	if err != nil {
		db.Close()
		return storage{}, err
	}
	events, err := store.NewHistoryStore(db, store.WithLogger(logger))
	if err != nil {
		db.Close()
		return storage{}, err
	}

	return storage{
		books:   books,
		history: events,
		pinger:  books,
		close:   db.Close,
	}, nil
}

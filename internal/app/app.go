package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reelboard/internal/config"
	"reelboard/internal/db"
	"reelboard/internal/engine"
	"reelboard/internal/migrate"
)

type Options struct {
	Workspace string
	Logger    *zap.Logger
	// Now pins the clock, mainly for tests.
	Now func() time.Time
	// SeedUsers creates the default accounts in an empty workspace.
	SeedUsers bool
	// Reconcile regenerates every project's stages after loading the board.
	Reconcile bool
}

// App is an opened workspace: migrated database, configuration and engine.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares a workspace for use by the CLI or the server.
func Open(ctx context.Context, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		log.Info("applied migrations", zap.Strings("names", applied))
	}
	engOpts := []engine.Option{engine.WithLogger(log)}
	if opts.Now != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Now))
	}
	e, err := engine.New(conn, cfg, engOpts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := e.LoadBoard(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("load gantt board: %w", err)
	}
	if opts.SeedUsers {
		if _, err := e.EnsureDefaultUsers(ctx, engine.DefaultUsers); err != nil {
			conn.Close()
			return nil, fmt.Errorf("seed users: %w", err)
		}
	}
	if opts.Reconcile {
		n, err := e.ReconcileAll(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("reconcile gantt: %w", err)
		}
		log.Info("gantt ready", zap.Int("projects", n), zap.Int("tasks", e.Board.Store.Len()))
	}
	return &App{DB: conn, Config: cfg, Engine: e}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Package app wires the store, migrations and engine together for the CLI and server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"missiondesk/internal/config"
	"missiondesk/internal/db"
	"missiondesk/internal/engine"
	"missiondesk/internal/migrate"
)

type Options struct {
	Workspace string
	Config    *config.Config
	Logger    *slog.Logger
	// SeedAdmin creates the bootstrap administrator when no admin exists.
	SeedAdmin bool
}

// Open opens and migrates the configured store and returns an engine over it.
// The caller closes the returned DB.
func Open(ctx context.Context, opts Options) (engine.Engine, *db.DB, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOrDefault(opts.Workspace)
		if err != nil {
			return engine.Engine{}, nil, err
		}
		cfg = loaded
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		return engine.Engine{}, nil, fmt.Errorf("open store: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("connect store: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	if opts.Logger != nil {
		eng.Log = opts.Logger
	}
	if opts.SeedAdmin {
		if _, err := eng.EnsureAdmin(ctx, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminPassword); err != nil {
			conn.Close()
			return engine.Engine{}, nil, err
		}
	}
	return eng, conn, nil
}

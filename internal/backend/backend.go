// Package backend opens the record store, the summary archive and the shared
// caches selected by the configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vansales/internal/archive"
	"vansales/internal/archive/mongo"
	"vansales/internal/config"
	"vansales/internal/store"
	"vansales/internal/store/memory"
	"vansales/internal/store/postgres"
	"vansales/internal/store/sheets"
	"vansales/internal/store/sqlite"
	"vansales/internal/store/supabase"
)

// CleanupFunc releases a resource opened by the factory.
type CleanupFunc func(ctx context.Context) error

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// Backend is the set of persistence resources the server runs on.
type Backend struct {
	Store   store.Store
	Archive archive.Archive

	cleanups []CleanupFunc
	pings    map[string]PingFunc
}

// Open creates the store named by cfg.DataBackend and the archive: MongoDB
// when MONGO_URI is set, the sqlite table when the store is sqlite, memory
// otherwise.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{pings: map[string]PingFunc{}}

	var (
		sqliteStore *sqlite.Store
		err         error
	)
	switch cfg.DataBackend {
	case config.BackendMemory:
		b.Store = memory.NewFromFiles(cfg.DataDir)
		logger.Info("Initialized memory backend", "data_directory", cfg.DataDir)

	case config.BackendSQLite:
		sqliteStore, err = sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		b.Store = sqliteStore
		b.addCleanup(func(context.Context) error { return sqliteStore.Close() })
		b.pings["sqlite"] = sqliteStore.Ping
		logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)

	case config.BackendPostgres:
		pg, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		b.Store = pg
		b.addCleanup(func(context.Context) error { return pg.Close() })
		b.pings["postgres"] = pg.Ping
		logger.Info("Initialized Postgres backend")

	case config.BackendSupabase:
		sb := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey, Timeout: cfg.SupabaseTimeout})
		b.Store = sb
		b.pings["supabase"] = sb.Ping
		logger.Info("Initialized Supabase backend", "url", cfg.SupabaseURL)

	case config.BackendSheets:
		sh, err := OpenSheets(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.Store = sh
		b.pings["sheets"] = sh.Ping
		logger.Info("Initialized Google Sheets backend")

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.DataBackend)
	}

	switch {
	case cfg.MongoURI != "":
		arch, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			_ = b.Close(ctx)
			return nil, fmt.Errorf("failed to initialize summary archive: %w", err)
		}
		b.Archive = arch
		b.addCleanup(arch.Close)
		b.pings["mongodb"] = arch.Ping
		logger.Info("Summary archive on MongoDB", "database", cfg.MongoDatabase)
	case sqliteStore != nil:
		b.Archive = sqliteStore.Summaries()
		logger.Info("Summary archive on SQLite")
	default:
		b.Archive = archive.NewMemory()
		logger.Info("Summary archive in memory")
	}

	return b, nil
}

// OpenSheets connects to the spreadsheet named in cfg. The worker uses it as
// its mirror target.
func OpenSheets(ctx context.Context, cfg *config.Config) (*sheets.Client, error) {
	cli, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return cli, nil
}

func (b *Backend) addCleanup(fn CleanupFunc) {
	b.cleanups = append(b.cleanups, fn)
}

// Ping checks every remote dependency. The error names the ones that failed.
func (b *Backend) Ping(ctx context.Context) error {
	var errs []error
	for name, ping := range b.pings {
		if err := ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases resources in reverse order of opening.
func (b *Backend) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}

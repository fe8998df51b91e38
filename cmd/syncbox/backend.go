package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the cgo "sqlite3" driver selected with --db-driver sqlite3.
	_ "github.com/mattn/go-sqlite3"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/httpremote"
	"github.com/velmie/syncbox/internal/device"
	"github.com/velmie/syncbox/mysql"
	"github.com/velmie/syncbox/sqlite"
)

// backend is the store surface shared by the sqlite and mysql stores.
type backend interface {
	syncbox.Store
	ClearDoneBefore(ctx context.Context, before time.Time, limit int) (int64, error)
}

type openedBackend struct {
	store backend
	db    *sql.DB
}

func (b openedBackend) Close() error {
	return b.db.Close()
}

func (a *app) openBackend(ctx context.Context) (openedBackend, error) {
	if a.cfg.IsSQLite() {
		if err := ensureFileDir(a.cfg.DSN); err != nil {
			return openedBackend{}, err
		}
		store, db, err := sqlite.Open(ctx, a.cfg.DBDriver, a.cfg.DSN, sqlite.WithTable(a.cfg.Table))
		if err != nil {
			return openedBackend{}, err
		}
		return openedBackend{store: store, db: db}, nil
	}

	store, db, err := mysql.Open(ctx, a.cfg.DSN, mysql.WithTable(a.cfg.Table))
	if err != nil {
		return openedBackend{}, err
	}

	return openedBackend{store: store, db: db}, nil
}

func (a *app) newRelay(store syncbox.Store) (*syncbox.Relay, error) {
	if strings.TrimSpace(a.cfg.RemoteURL) == "" {
		return nil, fmt.Errorf("%w: remote-url is required", errUsage)
	}
	deviceID, err := device.LoadOrCreate(a.cfg.DeviceIDFile)
	if err != nil {
		return nil, err
	}

	client := httpremote.NewClient(
		a.cfg.RemoteURL,
		httpremote.WithAPIKey(a.cfg.APIKey),
		httpremote.WithTimeout(a.cfg.AttemptTimeout),
	)
	opts := []syncbox.RelayOption{
		syncbox.WithBatchSize(a.cfg.BatchSize),
		syncbox.WithPollInterval(a.cfg.PollInterval),
		syncbox.WithRetryInterval(a.cfg.RetryInterval),
		syncbox.WithAttemptTimeout(a.cfg.AttemptTimeout),
		syncbox.WithLogger(a.logger.With("device_id", deviceID)),
	}
	if a.cfg.ContinueOnFailure {
		opts = append(opts, syncbox.WithContinueOnFailure())
	}

	return syncbox.NewRelay(store, client, deviceID, opts...), nil
}

// ensureFileDir creates the parent directory of a file-backed sqlite DSN.
func ensureFileDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}

	return nil
}

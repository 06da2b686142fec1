package postgres

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/divanjapones/notifier"
)

//go:embed migration/*.sql
var migrationFS embed.FS

const (
	connectTimeout = 5 * time.Second
	pingTimeout    = 2 * time.Second
)

// pool is the subset of pgxpool.Pool the services use.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

var _ notifier.Database = (*DB)(nil)

// DB represents the database connection.
type DB struct {
	pool   pool
	ctx    context.Context
	cancel func()

	url      string
	timezone string
	logger   zerolog.Logger
}

// NewDB returns new database
func NewDB(url, timezone string, logger zerolog.Logger) *DB {
	db := &DB{
		url:      url,
		timezone: timezone,
		logger:   logger,
	}

	db.ctx, db.cancel = context.WithCancel(context.Background())

	return db
}

// Open opens new database connection
func (db *DB) Open() error {
	if db.url == "" {
		return errors.New("url required")
	}

	if db.pool != nil {
		return nil
	}

	cfg, err := pgxpool.ParseConfig(db.url)
	if err != nil {
		return errors.Wrap(err, "parse db config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = time.Minute
	if db.timezone != "" {
		// NOW() and CURRENT_DATE follow the editorial calendar.
		cfg.ConnConfig.RuntimeParams["timezone"] = db.timezone
	}

	ctx, cancel := context.WithTimeout(db.ctx, connectTimeout)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "connect")
	}

	pingCtx, pingCancel := context.WithTimeout(db.ctx, pingTimeout)
	defer pingCancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return errors.Wrap(err, "ping")
	}
	db.pool = p

	if err := db.migrate(); err != nil {
		return errors.Wrap(err, "migrate")
	}

	db.logger.Info().Str("timezone", db.timezone).Msg("Database pool created")

	return nil
}

func (db *DB) migrate() error {
	if _, err := db.pool.Exec(db.ctx, `CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY);`); err != nil {
		return errors.Wrap(err, "cannot create migrations table")
	}

	names, err := fs.Glob(migrationFS, "migration/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if err := db.migrateFile(name); err != nil {
			return errors.Wrapf(err, "migration error: name=%q", name)
		}
	}

	return nil
}

func (db *DB) migrateFile(name string) error {
	tx, err := db.pool.Begin(db.ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(db.ctx)
	}()

	var n int
	if err := tx.QueryRow(db.ctx, `SELECT COUNT(*) FROM migrations WHERE name = $1`, name).Scan(&n); err != nil {
		return err
	}
	if n != 0 {
		return nil
	}

	buf, err := fs.ReadFile(migrationFS, name)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(db.ctx, string(buf)); err != nil {
		return err
	}

	if _, err := tx.Exec(db.ctx, `INSERT INTO migrations (name) VALUES ($1)`, name); err != nil {
		return err
	}

	return tx.Commit(db.ctx)
}

// Close closes database connection
func (db *DB) Close() error {
	db.cancel()

	if db.pool != nil {
		db.pool.Close()
	}

	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

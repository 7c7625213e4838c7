package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
)

// Store owns the two logical connection pools backing persistence: one for
// review-batch transactions and one for job-status writes, so heavy batches
// never starve status updates. Both pools point at the same database.
type Store struct {
	reviewDB *sql.DB
	statusDB *sql.DB
	cfg      config.SQLConfig
}

// Open establishes both pools, optionally creating the target database and
// applying the schema.
func Open(cfg config.SQLConfig) (*Store, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}

	reviewDB, err := openPool(cfg, cfg.ReviewPool, true)
	if err != nil {
		return nil, fmt.Errorf("open review pool: %w", err)
	}
	statusDB, err := openPool(cfg, cfg.StatusPool, false)
	if err != nil {
		_ = reviewDB.Close()
		return nil, fmt.Errorf("open status pool: %w", err)
	}

	store := &Store{
		reviewDB: reviewDB,
		statusDB: statusDB,
		cfg:      cfg,
	}
	if cfg.AutoMigrate {
		if err := store.ensureSchema(context.Background()); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

func openPool(cfg config.SQLConfig, pool config.PoolConfig, allowCreate bool) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if allowCreate && cfg.CreateIfMissing && shouldAttemptCreateDatabase(cfg.Driver, err) {
			_ = db.Close()
			if err := createDatabase(ctx, cfg); err != nil {
				return nil, err
			}
			db, err = sql.Open(cfg.Driver, cfg.DSN)
			if err != nil {
				return nil, fmt.Errorf("open sql connection: %w", err)
			}
			if err := db.PingContext(ctx); err != nil {
				return nil, fmt.Errorf("ping sql connection: %w", err)
			}
		} else {
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	return db, nil
}

// Close closes both pools.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.reviewDB != nil {
		err = s.reviewDB.Close()
	}
	if s.statusDB != nil {
		if cerr := s.statusDB.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func shouldAttemptCreateDatabase(driver string, err error) bool {
	if !strings.EqualFold(driver, "postgres") {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, cfg config.SQLConfig) error {
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open(cfg.Driver, parsed.String())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping admin database: %w", err)
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if s == nil || s.reviewDB == nil || !s.cfg.AutoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scrape_jobs (
		    job_id TEXT PRIMARY KEY,
		    app_id TEXT NOT NULL,
		    status TEXT NOT NULL,
		    started_at TIMESTAMPTZ NOT NULL,
		    completed_at TIMESTAMPTZ,
		    total_reviews INT,
		    error_message TEXT,
		    created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_jobs_app_id ON scrape_jobs (app_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS reviews (
		    review_id TEXT PRIMARY KEY,
		    app_id TEXT NOT NULL,
		    user_name VARCHAR(255),
		    content TEXT,
		    score INT,
		    thumbs_up_count INT,
		    reviewed_at TIMESTAMPTZ,
		    reply_content TEXT,
		    replied_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_app_id ON reviews (app_id, reviewed_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.reviewDB.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}

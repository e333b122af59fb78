// Package postgres opens the lib/pq connection pool the index exporter
// writes TF-IDF scores through.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
)

// Schema holds one row per (term, doc) pair. A re-export overwrites the
// score and stamps the job that produced it.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tfidf_scores (
	term        TEXT             NOT NULL,
	doc_id      BIGINT           NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	job_id      TEXT             NOT NULL,
	exported_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
	PRIMARY KEY (term, doc_id)
)`,
	`CREATE INDEX IF NOT EXISTS tfidf_scores_job_idx ON tfidf_scores (job_id)`,
}

type Client struct {
	DB *sql.DB
}

// New opens a pool sized from cfg and checks it with a ping.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{DB: db}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres %s:%d unreachable: %w", cfg.Host, cfg.Port, err)
	}
	return c, nil
}

// EnsureSchema applies Schema in one transaction.
func (c *Client) EnsureSchema(ctx context.Context) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range Schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
		}
		return nil
	})
}

func (c *Client) Ping(ctx context.Context) error { return c.DB.PingContext(ctx) }

func (c *Client) Close() error { return c.DB.Close() }

// InTx commits when fn returns nil and rolls back otherwise.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = multierror.Append(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

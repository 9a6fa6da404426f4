// Package catalog is the PostgreSQL registry of active shards. The position
// column fixes the merge order, and so the global document id ranges.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/resilience"
)

// Schema creates the shard table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS shards (
	position   INTEGER PRIMARY KEY CHECK (position >= 0),
	path       TEXT NOT NULL UNIQUE,
	doc_count  INTEGER NOT NULL CHECK (doc_count >= 0),
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type Entry struct {
	Position  int       `db:"position" json:"position"`
	Path      string    `db:"path" json:"path"`
	DocCount  int       `db:"doc_count" json:"doc_count"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ShardsChanged is published whenever the active shard list changes. Paths,
// when set, is the new list in merge order; otherwise consumers re-read the
// catalog.
type ShardsChanged struct {
	Paths  []string  `json:"paths,omitempty"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type Catalog struct {
	db     *sqlx.DB
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(client *postgres.Client) *Catalog {
	return &Catalog{
		db:     client.DB,
		retry:  resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			Retryable:    Transient,
		},
		logger: slog.Default().With("component", "shard-catalog"),
	}
}

func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating shard catalog schema: %w", err)
	}
	return nil
}

// ActiveShards returns the active shards ordered by position.
func (c *Catalog) ActiveShards(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := resilience.Retry(ctx, "catalog.active_shards", c.retry, func() error {
		entries = entries[:0]
		return c.db.SelectContext(ctx, &entries,
			`SELECT position, path, doc_count, created_at
			   FROM shards
			  WHERE active
			  ORDER BY position`)
	})
	if err != nil {
		return nil, fmt.Errorf("listing active shards: %w", err)
	}
	if err := Validate(entries); err != nil {
		return nil, err
	}
	c.logger.Debug("active shards loaded", "count", len(entries))
	return entries, nil
}

// ShardPaths returns the active shard paths in merge order.
func (c *Catalog) ShardPaths(ctx context.Context) ([]string, error) {
	entries, err := c.ActiveShards(ctx)
	if err != nil {
		return nil, err
	}
	return Paths(entries), nil
}

// Register appends a shard after the current last position.
func (c *Catalog) Register(ctx context.Context, path string, docCount int) (Entry, error) {
	if strings.TrimSpace(path) == "" || docCount < 0 {
		return Entry{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"invalid shard registration %q with %d documents", path, docCount)
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("beginning registration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `LOCK TABLE shards IN EXCLUSIVE MODE`); err != nil {
		return Entry{}, fmt.Errorf("locking shard catalog: %w", err)
	}
	var entry Entry
	err = tx.GetContext(ctx, &entry,
		`INSERT INTO shards (position, path, doc_count)
		 SELECT COALESCE(MAX(position) + 1, 0), $1, $2 FROM shards
		 RETURNING position, path, doc_count, created_at`,
		path, docCount)
	if err != nil {
		return Entry{}, fmt.Errorf("registering shard %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing registration: %w", err)
	}
	c.logger.Info("shard registered", "path", path, "position", entry.Position, "docs", docCount)
	return entry, nil
}

// Deactivate removes a shard from the active list. Positions of the other
// shards are kept, so the merge order of the remaining shards is unchanged.
func (c *Catalog) Deactivate(ctx context.Context, path string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE shards SET active = FALSE WHERE path = $1 AND active`, path)
	if err != nil {
		return fmt.Errorf("deactivating shard %s: %w", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "no active shard %s", path)
	}
	return nil
}

// Validate checks that entries are in strictly ascending, non-negative
// position order with distinct, non-empty paths.
func Validate(entries []Entry) error {
	var errs []error
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		if e.Position < 0 {
			errs = append(errs, fmt.Errorf("shard %q has negative position %d", e.Path, e.Position))
		}
		if i > 0 && e.Position <= entries[i-1].Position {
			errs = append(errs, fmt.Errorf("shard %q at position %d is out of order", e.Path, e.Position))
		}
		if strings.TrimSpace(e.Path) == "" {
			errs = append(errs, fmt.Errorf("shard at position %d has an empty path", e.Position))
			continue
		}
		if prev, dup := seen[e.Path]; dup {
			errs = append(errs, fmt.Errorf("shard %q listed at positions %d and %d", e.Path, prev, e.Position))
		}
		seen[e.Path] = e.Position
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	return nil
}

func Paths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

// Transient reports whether a catalog query error may succeed on retry.
// Cancellation and SQL errors of class 42 (syntax or undefined object) are
// permanent.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "42" {
		return false
	}
	return true
}

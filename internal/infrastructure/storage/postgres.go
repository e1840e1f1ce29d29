package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
	dedup_key      TEXT PRIMARY KEY,
	source_name    TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL,
	source_date    TIMESTAMPTZ,
	score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	tags           TEXT NOT NULL DEFAULT '[]',
	points         INTEGER NOT NULL DEFAULT 0,
	comments_count INTEGER NOT NULL DEFAULT 0,
	votes          INTEGER NOT NULL DEFAULT 0,
	stars          INTEGER NOT NULL DEFAULT 0,
	stars_today    INTEGER NOT NULL DEFAULT 0,
	forks          INTEGER NOT NULL DEFAULT 0,
	watchers       INTEGER NOT NULL DEFAULT 0,
	language       TEXT NOT NULL DEFAULT '',
	maker          TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_source_date ON items(source_date);
CREATE INDEX IF NOT EXISTS idx_items_score ON items(score DESC);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres persists items in a shared Postgres database for deployments
// where several machines read the same store.
type Postgres struct {
	db *sql.DB
}

var _ ports.Storage = (*Postgres)(nil)

// OpenPostgres connects using the given DSN and ensures the schema
// exists.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Name identifies the backend in logs and summaries.
func (p *Postgres) Name() string {
	return "postgres"
}

// UpsertItems decides insert vs update vs unchanged per item. The write
// itself uses ON CONFLICT so a concurrent run cannot produce duplicate
// keys; the prior lookup only drives the counters and skips no-op
// writes.
func (p *Postgres) UpsertItems(ctx context.Context, items []domain.Item) ports.UpsertResult {
	var result ports.UpsertResult
	now := time.Now()

	for _, item := range items {
		if err := item.Validate(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		existing, found, err := p.lookup(ctx, item.Key())
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("lookup %s: %v", item.Key(), err))
			continue
		}
		if found && existing.ContentEquals(item) {
			result.Unchanged++
			continue
		}

		createdAt := item.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if found {
			createdAt = existing.CreatedAt
		}

		query, args, err := psql.Insert("items").
			Columns(itemColumns...).
			Values(itemValues(item, createdAt, now)...).
			Suffix(`ON CONFLICT (dedup_key) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				url = EXCLUDED.url,
				source_date = EXCLUDED.source_date,
				score = EXCLUDED.score,
				tags = EXCLUDED.tags,
				points = EXCLUDED.points,
				comments_count = EXCLUDED.comments_count,
				votes = EXCLUDED.votes,
				stars = EXCLUDED.stars,
				stars_today = EXCLUDED.stars_today,
				forks = EXCLUDED.forks,
				watchers = EXCLUDED.watchers,
				language = EXCLUDED.language,
				maker = EXCLUDED.maker,
				updated_at = EXCLUDED.updated_at`).
			ToSql()
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("build upsert %s: %v", item.Key(), err))
			continue
		}

		if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("upsert %s: %v", item.Key(), err))
			continue
		}
		if found {
			result.Updated++
		} else {
			result.Inserted++
		}
	}
	return result
}

func (p *Postgres) lookup(ctx context.Context, key string) (domain.Item, bool, error) {
	query, args, err := psql.Select(itemColumns...).
		From("items").
		Where(sq.Eq{"dedup_key": key}).
		ToSql()
	if err != nil {
		return domain.Item{}, false, err
	}

	item, err := scanItem(p.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, err
	}
	return item, true, nil
}

// QueryItems filters stored items sorted by score descending.
func (p *Postgres) QueryItems(ctx context.Context, opts ports.QueryOptions) ([]domain.Item, error) {
	builder := psql.Select(itemColumns...).
		From("items").
		OrderBy("score DESC", "dedup_key ASC")

	if !opts.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"source_date": opts.Since})
	}
	if !opts.Until.IsZero() {
		builder = builder.Where(sq.Lt{"source_date": opts.Until})
	}
	if len(opts.Sources) > 0 {
		builder = builder.Where(sq.Eq{"source_name": opts.Sources})
	}
	if opts.MinScore > 0 {
		builder = builder.Where(sq.GtOrEq{"score": opts.MinScore})
	}
	if opts.Limit > 0 {
		builder = builder.Limit(uint64(opts.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Cleanup deletes records older than the retention window.
func (p *Postgres) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	query, args, err := psql.Delete("items").
		Where(sq.NotEq{"source_date": nil}).
		Where(sq.Lt{"source_date": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	deleted, err := res.RowsAffected()
	return int(deleted), err
}

// EnforceCeiling deletes oldest records first until 10% under the
// ceiling.
func (p *Postgres) EnforceCeiling(ctx context.Context, maxRecords int) (int, error) {
	if maxRecords < 1 {
		return 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&total); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	if total <= maxRecords {
		return 0, nil
	}

	target := maxRecords * 9 / 10
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM items WHERE dedup_key IN (
			SELECT dedup_key FROM items
			ORDER BY source_date ASC NULLS FIRST, dedup_key ASC
			LIMIT $1
		)`, total-target)
	if err != nil {
		return 0, fmt.Errorf("enforce ceiling: %w", err)
	}
	deleted, err := res.RowsAffected()
	return int(deleted), err
}

// Stats reports the store snapshot without mutating state.
func (p *Postgres) Stats(ctx context.Context) (ports.StorageStats, error) {
	stats := ports.StorageStats{BySource: map[string]int{}}

	rows, err := p.db.QueryContext(ctx, "SELECT source_name, COUNT(*) FROM items GROUP BY source_name")
	if err != nil {
		return stats, fmt.Errorf("stats by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		stats.BySource[source] = count
		stats.TotalRecords += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var oldest, newest sql.NullTime
	err = p.db.QueryRowContext(ctx,
		"SELECT MIN(source_date), MAX(source_date) FROM items").
		Scan(&oldest, &newest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, fmt.Errorf("stats range: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = oldest.Time
	}
	if newest.Valid {
		stats.Newest = newest.Time
	}
	return stats, nil
}

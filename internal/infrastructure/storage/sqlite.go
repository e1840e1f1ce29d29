package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"ideadigest/internal/domain"
	"ideadigest/internal/ports"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	dedup_key      TEXT PRIMARY KEY,
	source_name    TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL,
	source_date    TIMESTAMP,
	score          REAL NOT NULL DEFAULT 0,
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
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_source_date ON items(source_date);
CREATE INDEX IF NOT EXISTS idx_items_score ON items(score DESC);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source_name);
`

// SQLite persists items in a local database file. It is the default
// backend: durable, dependency-free at runtime, and cheap enough for a
// single daily run.
type SQLite struct {
	db *sql.DB
}

var _ ports.Storage = (*SQLite)(nil)

// OpenSQLite opens (creating if necessary) the database at path and
// ensures the schema exists. A single connection serializes all writes,
// so at most one write per dedup key is in flight.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Name identifies the backend in logs and summaries.
func (s *SQLite) Name() string {
	return "sqlite"
}

// UpsertItems looks up each item by dedup key and decides insert vs
// update vs unchanged. One failing item never blocks the rest of the
// batch.
func (s *SQLite) UpsertItems(ctx context.Context, items []domain.Item) ports.UpsertResult {
	var result ports.UpsertResult
	now := time.Now()

	for _, item := range items {
		if err := item.Validate(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		existing, found, err := s.lookup(ctx, item.Key())
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("lookup %s: %v", item.Key(), err))
			continue
		}

		switch {
		case !found:
			if err := s.insert(ctx, item, now); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("insert %s: %v", item.Key(), err))
				continue
			}
			result.Inserted++
		case existing.ContentEquals(item):
			result.Unchanged++
		default:
			if err := s.update(ctx, item, now); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", item.Key(), err))
				continue
			}
			result.Updated++
		}
	}
	return result
}

func (s *SQLite) lookup(ctx context.Context, key string) (domain.Item, bool, error) {
	query, args, err := sq.Select(itemColumns...).
		From("items").
		Where(sq.Eq{"dedup_key": key}).
		ToSql()
	if err != nil {
		return domain.Item{}, false, err
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, err
	}
	return item, true, nil
}

func (s *SQLite) insert(ctx context.Context, item domain.Item, now time.Time) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query, args, err := sq.Insert("items").
		Columns(itemColumns...).
		Values(itemValues(item, createdAt, now)...).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLite) update(ctx context.Context, item domain.Item, now time.Time) error {
	query, args, err := sq.Update("items").
		SetMap(map[string]interface{}{
			"title":          item.Title,
			"description":    item.Description,
			"url":            item.URL,
			"source_date":    nullableTime(item.SourceDate),
			"score":          item.Score,
			"tags":           encodeTags(item.Tags),
			"points":         item.Points,
			"comments_count": item.CommentsCount,
			"votes":          item.Votes,
			"stars":          item.Stars,
			"stars_today":    item.StarsToday,
			"forks":          item.Forks,
			"watchers":       item.Watchers,
			"language":       item.Language,
			"maker":          encodeMaker(item.Maker),
			"updated_at":     now,
		}).
		Where(sq.Eq{"dedup_key": item.Key()}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// QueryItems filters stored items and returns them sorted by score
// descending, dedup key ascending as a deterministic tie-break.
func (s *SQLite) QueryItems(ctx context.Context, opts ports.QueryOptions) ([]domain.Item, error) {
	builder := sq.Select(itemColumns...).
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

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// Cleanup deletes records whose source date predates the retention
// window and returns the number removed.
func (s *SQLite) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	query, args, err := sq.Delete("items").
		Where(sq.NotEq{"source_date": nil}).
		Where(sq.Lt{"source_date": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	deleted, err := res.RowsAffected()
	return int(deleted), err
}

// EnforceCeiling deletes oldest records first until the store is 10%
// under maxRecords.
func (s *SQLite) EnforceCeiling(ctx context.Context, maxRecords int) (int, error) {
	if maxRecords < 1 {
		return 0, nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&total); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	if total <= maxRecords {
		return 0, nil
	}

	target := maxRecords * 9 / 10
	excess := total - target

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items WHERE dedup_key IN (
			SELECT dedup_key FROM items
			ORDER BY source_date IS NOT NULL, source_date ASC, dedup_key ASC
			LIMIT ?
		)`, excess)
	if err != nil {
		return 0, fmt.Errorf("enforce ceiling: %w", err)
	}
	deleted, err := res.RowsAffected()
	return int(deleted), err
}

// Stats reports the record count, per-source breakdown and source-date
// range without mutating state.
func (s *SQLite) Stats(ctx context.Context) (ports.StorageStats, error) {
	stats := ports.StorageStats{BySource: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, "SELECT source_name, COUNT(*) FROM items GROUP BY source_name")
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
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN(source_date), MAX(source_date) FROM items WHERE source_date IS NOT NULL").
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

var itemColumns = []string{
	"dedup_key", "source_name", "source_id", "title", "description", "url",
	"source_date", "score", "tags", "points", "comments_count", "votes",
	"stars", "stars_today", "forks", "watchers", "language", "maker",
	"created_at", "updated_at",
}

func itemValues(item domain.Item, createdAt, updatedAt time.Time) []interface{} {
	return []interface{}{
		item.Key(), item.SourceName, item.SourceID, item.Title,
		item.Description, item.URL, nullableTime(item.SourceDate),
		item.Score, encodeTags(item.Tags), item.Points, item.CommentsCount,
		item.Votes, item.Stars, item.StarsToday, item.Forks, item.Watchers,
		item.Language, encodeMaker(item.Maker), createdAt, updatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		item       domain.Item
		dedupKey   string
		sourceDate sql.NullTime
		tags       string
		maker      sql.NullString
	)

	err := row.Scan(
		&dedupKey, &item.SourceName, &item.SourceID, &item.Title,
		&item.Description, &item.URL, &sourceDate, &item.Score, &tags,
		&item.Points, &item.CommentsCount, &item.Votes, &item.Stars,
		&item.StarsToday, &item.Forks, &item.Watchers, &item.Language,
		&maker, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.Item{}, err
	}

	if sourceDate.Valid {
		item.SourceDate = sourceDate.Time
	}
	item.Tags = decodeTags(tags)
	if maker.Valid && maker.String != "" {
		var m domain.Maker
		if err := json.Unmarshal([]byte(maker.String), &m); err == nil {
			item.Maker = &m
		}
	}
	return item, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeTags(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func encodeMaker(maker *domain.Maker) interface{} {
	if maker == nil {
		return nil
	}
	raw, err := json.Marshal(maker)
	if err != nil {
		return nil
	}
	return string(raw)
}

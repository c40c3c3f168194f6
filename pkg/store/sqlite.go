// Package store persists articles and photos into a local SQLite file with
// at-most-one row per natural key. The store is single-writer: the pipeline
// runs sequentially, so the existence-check-then-insert pattern needs no
// locking. If runs were ever parallelized this would have to become an
// insert-or-ignore backed by the primary-key constraint.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kprss/pkg/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds what Open needs.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// ArticleTable is the articles table name (the site short name, kept
	// for compatibility with existing snapshots).
	ArticleTable string
}

// Store wraps the SQLite database with the two-table schema.
type Store struct {
	db    *sql.DB
	table string
}

// Open opens (creating if needed) the database and ensures the schema
// exists. Schema creation is idempotent.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Path, err)
	}

	s := &Store{db: db, table: cfg.ArticleTable}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	createArticles := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
		(key text PRIMARY KEY, url text, date date, dayid integer, title text,
		 article text, photo integer, chart integer, media text, category text)`, s.table)
	if _, err := s.db.Exec(createArticles); err != nil {
		return fmt.Errorf("create articles table: %w", err)
	}

	createPhotos := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS photo_chart
		(key text PRIMARY KEY, fkey text REFERENCES %s (key), type text, i integer,
		 url text, text text, filename text, url_dbx text)`, s.table)
	if _, err := s.db.Exec(createPhotos); err != nil {
		return fmt.Errorf("create photo_chart table: %w", err)
	}

	return nil
}

// StoreArticles inserts every article whose key is not yet present.
// Existing keys are skipped silently (first-write-wins; re-runs do not
// duplicate or update rows). All writes commit in one transaction at the
// end of the batch. Returns the number of rows actually inserted.
func (s *Store) StoreArticles(ctx context.Context, articles []domain.Article) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existsQuery := fmt.Sprintf("SELECT 1 FROM %s WHERE key = ?", s.table)
	insertQuery := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)

	inserted := 0
	for _, a := range articles {
		exists, err := rowExists(ctx, tx, existsQuery, a.Key)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}

		_, err = tx.ExecContext(ctx, insertQuery,
			a.Key, a.URL, a.Date.Format("2006-01-02"), a.DayID, a.Title,
			a.Body, a.PhotoCount, a.ChartCount, a.Media, a.Category)
		if err != nil {
			return 0, fmt.Errorf("insert article %s: %w", a.Key, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit articles: %w", err)
	}
	return inserted, nil
}

// StorePhotos inserts every photo whose key is not yet present, committing
// once at the end of the batch. The caller must only pass photos with a
// populated remote link; the owning article must already be stored.
func (s *Store) StorePhotos(ctx context.Context, photos []domain.Photo) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, p := range photos {
		exists, err := rowExists(ctx, tx, "SELECT 1 FROM photo_chart WHERE key = ?", p.Key)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO photo_chart VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			p.Key, p.FKey, p.Type, p.Index, p.URL, p.Text, p.Filename, p.RemoteLink)
		if err != nil {
			return 0, fmt.Errorf("insert photo %s: %w", p.Key, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit photos: %w", err)
	}
	return inserted, nil
}

func rowExists(ctx context.Context, tx *sql.Tx, query, key string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("existence check for %s: %w", key, err)
	}
	return true, nil
}

// RecentArticles returns the articles dated strictly after now minus
// windowDays, in store iteration order (insertion order; no sort applied).
func (s *Store) RecentArticles(ctx context.Context, now time.Time, windowDays int) ([]domain.Article, error) {
	cutoff := now.AddDate(0, 0, -windowDays).Format("2006-01-02")

	query := fmt.Sprintf(
		"SELECT key, url, date, dayid, title, article, photo, chart, media, category FROM %s WHERE date > ?",
		s.table)
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select recent articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		err := rows.Scan(&a.Key, &a.URL, &a.Date, &a.DayID, &a.Title,
			&a.Body, &a.PhotoCount, &a.ChartCount, &a.Media, &a.Category)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// PhotosForArticle returns the photos whose fkey matches the article key,
// in store iteration order.
func (s *Store) PhotosForArticle(ctx context.Context, key string) ([]domain.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, fkey, type, i, url, text, filename, url_dbx FROM photo_chart WHERE fkey = ?", key)
	if err != nil {
		return nil, fmt.Errorf("select photos for %s: %w", key, err)
	}
	defer rows.Close()

	var photos []domain.Photo
	for rows.Next() {
		var p domain.Photo
		err := rows.Scan(&p.Key, &p.FKey, &p.Type, &p.Index, &p.URL, &p.Text, &p.Filename, &p.RemoteLink)
		if err != nil {
			return nil, fmt.Errorf("scan photo row: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

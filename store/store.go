// Package store is the relational persistence adapter for photos, tags and
// photo-tag associations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrPhotoNotFound = errors.New("photo not found")

// TagScore is one scored tag as persisted on a photo association.
type TagScore struct {
	Name       string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

type Photo struct {
	ID            int64      `json:"id"`
	FilePath      string     `json:"file_path"`
	UploadedAt    time.Time  `json:"uploaded_at"`
	TagsGenerated bool       `json:"tags_generated"`
	Caption       *string    `json:"caption"`
	Tags          []TagScore `json:"tags,omitempty"`
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open failed for %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return nil, fmt.Errorf("set busy timeout failed for %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys failed for %s: %w", path, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS photos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			uploaded_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
			tags_generated INTEGER NOT NULL DEFAULT 0,
			caption TEXT
		);
	`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS photo_tags (
			photo_id INTEGER NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
			tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			confidence REAL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (photo_id, tag_id)
		);
	`); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NormalizeTag is the canonical tag-name form used for lookup and creation.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Store) CreatePhoto(ctx context.Context, filePath string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO photos (file_path) VALUES (?)`, filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create photo: %w", err)
	}
	return res.LastInsertId()
}

// Photo returns a photo with its tags ordered by descending confidence.
func (s *Store) Photo(ctx context.Context, id int64) (*Photo, error) {
	var p Photo
	var generated int
	var uploaded int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_path, uploaded_at, tags_generated, caption FROM photos WHERE id = ?`, id,
	).Scan(&p.ID, &p.FilePath, &uploaded, &generated, &p.Caption)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id=%d", ErrPhotoNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	p.UploadedAt = time.Unix(uploaded, 0)
	p.TagsGenerated = generated != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, pt.confidence FROM tags t
		JOIN photo_tags pt ON t.id = pt.tag_id
		WHERE pt.photo_id = ?
		ORDER BY pt.confidence DESC, t.name ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p.Tags = []TagScore{}
	for rows.Next() {
		var ts TagScore
		if err := rows.Scan(&ts.Name, &ts.Confidence); err != nil {
			return nil, err
		}
		p.Tags = append(p.Tags, ts)
	}
	return &p, rows.Err()
}

// SaveResult commits a completed pipeline run in one transaction: the
// caption and processed flag are set and the photo's associations are
// rebuilt from scratch. Any failure rolls the photo back to its prior
// state, so tags_generated never reads 1 alongside a partial tag set.
func (s *Store) SaveResult(ctx context.Context, photoID int64, caption string, tags []TagScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE photos SET caption = ?, tags_generated = 1 WHERE id = ?`, caption, photoID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: id=%d", ErrPhotoNotFound, photoID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM photo_tags WHERE photo_id = ?`, photoID); err != nil {
		return err
	}

	for _, t := range tags {
		name := NormalizeTag(t.Name)
		if name == "" {
			continue
		}
		tagID, err := getOrCreateTag(ctx, tx, name)
		if err != nil {
			return err
		}
		// REPLACE keeps a single row when two candidates normalize to the
		// same tag.
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO photo_tags (photo_id, tag_id, confidence) VALUES (?, ?, ?)`,
			photoID, tagID, t.Confidence); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func getOrCreateTag(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create tag %q: %w", name, err)
	}
	return res.LastInsertId()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/mediaup/internal/dbx"
	"github.com/dmitrijs2005/mediaup/internal/models"
	"github.com/dmitrijs2005/mediaup/internal/store/migrations"
)

// SQLiteStore keeps upload state in a local SQLite database so sessions
// survive a full restart of the client process.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and runs schema migrations.
func Open(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, session *models.Session) error {
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := time.Now()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (session_key, created_at, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(session_key) DO UPDATE SET updated_at = excluded.updated_at`,
			session.Key, createdAt.Unix(), updatedAt.Unix())
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		// Last-write-wins for the whole list: drop and reinsert.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_items WHERE session_key = ?`, session.Key); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}

		for i, it := range session.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO session_items
					(session_key, position, id, name, path, size, mime,
					 status, progress, attempt, remote_id, remote_url, error, compression_applied)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				session.Key, i, it.ID,
				it.Source.Name, it.Source.Path, it.Source.Size, it.Source.MIME,
				it.Status.String(), it.Progress, it.Attempt,
				it.RemoteID, it.RemoteURL, it.Error, boolToInt(it.CompressionApplied))
			if err != nil {
				return fmt.Errorf("insert item %s: %w", it.ID, err)
			}
		}

		return nil
	})
}

func (s *SQLiteStore) Load(ctx context.Context, sessionKey string) (*models.Session, error) {
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM sessions WHERE session_key = ?`, sessionKey).
		Scan(&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	session := &models.Session{
		Key:       sessionKey,
		CreatedAt: time.Unix(created, 0),
		UpdatedAt: time.Unix(updated, 0),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, size, mime,
		       status, progress, attempt, remote_id, remote_url, error, compression_applied
		FROM session_items
		WHERE session_key = ?
		ORDER BY position`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.UploadItem
		var status string
		var applied int
		if err := rows.Scan(&it.ID, &it.Source.Name, &it.Source.Path, &it.Source.Size, &it.Source.MIME,
			&status, &it.Progress, &it.Attempt, &it.RemoteID, &it.RemoteURL, &it.Error, &applied); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if it.Status, err = models.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		it.CompressionApplied = applied != 0
		session.Items = append(session.Items, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionKey string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_items WHERE session_key = ?`, sessionKey); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE session_key = ?`, sessionKey)
		return err
	})
}

func (s *SQLiteStore) CompactOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	var removed int

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM session_items WHERE session_key IN
				(SELECT session_key FROM sessions WHERE created_at < ?)`, cutoff); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)
		return nil
	})

	return removed, err
}

func (s *SQLiteStore) ImportLegacy(ctx context.Context, sessionKey string, urls []string) error {
	existing, err := s.Load(ctx, sessionKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	session := &models.Session{Key: sessionKey, CreatedAt: time.Now()}
	for _, url := range urls {
		session.Items = append(session.Items, &models.UploadItem{
			ID:        uuid.NewString(),
			Status:    models.StatusSucceeded,
			Progress:  100,
			RemoteID:  lastPathSegment(url),
			RemoteURL: url,
		})
	}
	return s.Save(ctx, session)
}

// lastPathSegment derives a remote id from a legacy URL, which recorded no
// id of its own.
func lastPathSegment(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

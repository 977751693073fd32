package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/storage/migrations"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

const activePromptKey = "active_prompt_id"

type SQLite struct {
	db     *sql.DB
	path   string
	limit  int
	logger *logger.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string, historyLimit int, log *logger.Logger) (*SQLite, error) {
	if path == "" {
		path = "data/deckstream.db"
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to create data directory")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to open database")
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path, limit: historyLimit, logger: logger.OrNop(log)}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to run migrations")
	}
	s.logger.Info("sqlite store ready", "path", path)
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLite) Save(ctx context.Context, p *domain.Presentation) error {
	body, blobs := splitImages(p)
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal presentation")
	}
	item := historyItem(p)
	themeJSON, err := json.Marshal(item.Theme)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal theme")
	}
	sourcesJSON, err := json.Marshal(item.Sources)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal sources")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO presentations (id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, p.ID, string(bodyJSON), now); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to save presentation")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM slide_images WHERE presentation_id = ?", p.ID); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to clear slide images")
	}
	for _, b := range blobs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO slide_images (presentation_id, slide_index, data) VALUES (?, ?, ?)",
			p.ID, b.index, b.data); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorage, "failed to save slide image")
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history_items (id, title, original_topic, theme, language, slide_count, sources, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			slide_count = excluded.slide_count,
			updated_at = excluded.updated_at
	`, item.ID, item.Title, item.OriginalTopic, string(themeJSON), string(item.Language),
		item.SlideCount, string(sourcesJSON), now, now); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to save history item")
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM history_items WHERE id NOT IN (
			SELECT id FROM history_items ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, s.limit); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to trim history list")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to commit presentation")
	}
	s.logger.Debug("saved presentation", "id", p.ID, "slides", len(p.Slides), "images", len(blobs))
	return nil
}

func (s *SQLite) LoadHistoryList(ctx context.Context) ([]domain.HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, original_topic, theme, language, slide_count, sources, created_at, updated_at
		FROM history_items
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to query history list")
	}
	defer rows.Close()

	items := []domain.HistoryItem{}
	for rows.Next() {
		var (
			item               domain.HistoryItem
			themeJSON, srcJSON string
			language           string
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.OriginalTopic, &themeJSON, &language,
			&item.SlideCount, &srcJSON, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to scan history item")
		}
		item.Language = domain.Language(language)
		if err := json.Unmarshal([]byte(themeJSON), &item.Theme); err != nil {
			s.logger.Warn("history item has unreadable theme", "id", item.ID, "error", err)
		}
		if err := json.Unmarshal([]byte(srcJSON), &item.Sources); err != nil {
			s.logger.Warn("history item has unreadable sources", "id", item.ID, "error", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to read history list")
	}
	return items, nil
}

func (s *SQLite) Load(ctx context.Context, id string) (*domain.Presentation, error) {
	var bodyJSON string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM presentations WHERE id = ?", id).Scan(&bodyJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to load presentation")
	}

	var p domain.Presentation
	if err := json.Unmarshal([]byte(bodyJSON), &p); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "stored presentation is corrupt")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT slide_index, data FROM slide_images WHERE presentation_id = ? ORDER BY slide_index", id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to load slide images")
	}
	defer rows.Close()

	var blobs []blob
	for rows.Next() {
		var b blob
		if err := rows.Scan(&b.index, &b.data); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to scan slide image")
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to read slide images")
	}
	joinImages(&p, blobs)
	return &p, nil
}

func (s *SQLite) ListPrompts(ctx context.Context) ([]domain.PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, prompt, feedback_summary, created_at FROM prompt_versions ORDER BY seq ASC")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to query prompt versions")
	}
	defer rows.Close()

	versions := []domain.PromptVersion{}
	for rows.Next() {
		var v domain.PromptVersion
		if err := rows.Scan(&v.ID, &v.Prompt, &v.FeedbackSummary, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to scan prompt version")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to read prompt versions")
	}
	return versions, nil
}

func (s *SQLite) AddPrompt(ctx context.Context, v domain.PromptVersion) error {
	return s.addPrompt(ctx, s.db, v)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) addPrompt(ctx context.Context, db execer, v domain.PromptVersion) error {
	if _, err := db.ExecContext(ctx,
		"INSERT INTO prompt_versions (id, prompt, feedback_summary, created_at) VALUES (?, ?, ?, ?)",
		v.ID, v.Prompt, v.FeedbackSummary, v.CreatedAt.UTC()); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to save prompt version")
	}
	return nil
}

func (s *SQLite) ReplacePrompts(ctx context.Context, versions []domain.PromptVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM prompt_versions"); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to clear prompt versions")
	}
	for _, v := range versions {
		if err := s.addPrompt(ctx, tx, v); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to commit prompt versions")
	}
	return nil
}

func (s *SQLite) ActivePromptID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", activePromptKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorage, "failed to read active prompt")
	}
	return id, nil
}

func (s *SQLite) SetActivePromptID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, activePromptKey, id); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to set active prompt")
	}
	return nil
}

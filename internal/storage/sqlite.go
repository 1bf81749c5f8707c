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

	"github.com/kalambet/gapscout/internal/search"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed Repository used for local and single-node runs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*Store)(nil)

// Open opens (or creates) gapscout.db in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "gapscout.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: in-memory databases are per-connection, and file
	// databases avoid "database is locked" under concurrent writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", m.version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.body); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}
	return nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Problems ---

const problemColumns = `id, title, domain, role, overview, gap, automation, action, source_type, source_url,
	search_query, sentiment, quality_warnings, completeness, created_at`

func (s *Store) InsertProblems(ctx context.Context, problems []Problem) ([]Problem, error) {
	if len(problems) == 0 {
		return nil, nil
	}
	batch := prepareBatch(problems, s.now().UTC())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO curated_problems (`+problemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range batch {
		enc, err := encodeProblem(p)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Title, p.Domain, p.Role, p.Overview, p.Gap, p.Automation, string(enc.action),
			string(p.SourceType), p.SourceURL, p.SearchQuery, string(enc.sentiment), string(enc.warnings),
			p.Completeness, formatTime(p.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("inserting problem %q: %w", p.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing problems: %w", err)
	}
	return batch, nil
}

func (s *Store) ListProblems(ctx context.Context, f ProblemFilter) ([]Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM curated_problems`
	var args []any
	if f.Source != "" {
		query += ` WHERE source_type = ?`
		args = append(args, f.Source)
	}
	query += ` ORDER BY created_at DESC, rowid ASC LIMIT ?`
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProblem(ctx context.Context, id string) (Problem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM curated_problems WHERE id = ?`, id)
	p, err := scanProblem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Problem{}, ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(r rowScanner) (Problem, error) {
	var p Problem
	var action, sentiment, warnings, sourceType, createdAt string
	if err := r.Scan(&p.ID, &p.Title, &p.Domain, &p.Role, &p.Overview, &p.Gap, &p.Automation, &action,
		&sourceType, &p.SourceURL, &p.SearchQuery, &sentiment, &warnings, &p.Completeness, &createdAt); err != nil {
		return Problem{}, err
	}
	p.SourceType = search.Source(sourceType)
	t, err := parseTime(createdAt)
	if err != nil {
		return Problem{}, fmt.Errorf("parsing created_at: %w", err)
	}
	p.CreatedAt = t

	enc := problemJSON{action: []byte(action), sentiment: []byte(sentiment), warnings: []byte(warnings)}
	if err := enc.decodeInto(&p); err != nil {
		return Problem{}, err
	}
	return p, nil
}

// --- Saved searches ---

const searchColumns = `id, user_id, search_type, query, sources, alert_enabled, alert_frequency, last_run_at, created_at`

func (s *Store) SaveSearch(ctx context.Context, in SavedSearch) (SavedSearch, error) {
	ss, err := prepareSearch(in, s.now().UTC())
	if err != nil {
		return SavedSearch{}, err
	}
	if err := s.writeSearch(ctx, ss, true); err != nil {
		return SavedSearch{}, err
	}
	return ss, nil
}

func (s *Store) writeSearch(ctx context.Context, ss SavedSearch, insert bool) error {
	sources, err := json.Marshal(ss.Sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	var lastRun sql.NullString
	if ss.LastRunAt != nil {
		lastRun = sql.NullString{String: formatTime(*ss.LastRunAt), Valid: true}
	}

	if insert {
		_, err = s.db.ExecContext(ctx, `INSERT INTO saved_searches (`+searchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ss.ID, ss.UserID, ss.SearchType, ss.Query, string(sources), ss.AlertEnabled, ss.AlertFrequency,
			lastRun, formatTime(ss.CreatedAt))
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE saved_searches
		SET search_type = ?, query = ?, sources = ?, alert_enabled = ?, alert_frequency = ?, last_run_at = ?
		WHERE id = ?`,
		ss.SearchType, ss.Query, string(sources), ss.AlertEnabled, ss.AlertFrequency, lastRun, ss.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListSearches(ctx context.Context, userID string) ([]SavedSearch, error) {
	return s.querySearches(ctx, `SELECT `+searchColumns+` FROM saved_searches
		WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *Store) ListAlertingSearches(ctx context.Context) ([]SavedSearch, error) {
	return s.querySearches(ctx, `SELECT `+searchColumns+` FROM saved_searches
		WHERE alert_enabled = 1 AND alert_frequency != ? ORDER BY created_at ASC`, FrequencyNever)
}

func (s *Store) querySearches(ctx context.Context, query string, args ...any) ([]SavedSearch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedSearch
	for rows.Next() {
		ss, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func (s *Store) GetSearch(ctx context.Context, id string) (SavedSearch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+searchColumns+` FROM saved_searches WHERE id = ?`, id)
	ss, err := scanSearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedSearch{}, ErrNotFound
	}
	return ss, err
}

func (s *Store) UpdateSearch(ctx context.Context, id string, u SearchUpdate) (SavedSearch, error) {
	ss, err := s.GetSearch(ctx, id)
	if err != nil {
		return SavedSearch{}, err
	}
	if err := u.apply(&ss); err != nil {
		return SavedSearch{}, err
	}
	if err := s.writeSearch(ctx, ss, false); err != nil {
		return SavedSearch{}, err
	}
	return ss, nil
}

func (s *Store) DeleteSearch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) TouchSearch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE saved_searches SET last_run_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanSearch(r rowScanner) (SavedSearch, error) {
	var ss SavedSearch
	var sources, createdAt string
	var lastRun sql.NullString
	if err := r.Scan(&ss.ID, &ss.UserID, &ss.SearchType, &ss.Query, &sources, &ss.AlertEnabled,
		&ss.AlertFrequency, &lastRun, &createdAt); err != nil {
		return SavedSearch{}, err
	}
	if err := json.Unmarshal([]byte(sources), &ss.Sources); err != nil {
		return SavedSearch{}, fmt.Errorf("decoding sources for %s: %w", ss.ID, err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return SavedSearch{}, fmt.Errorf("parsing created_at: %w", err)
	}
	ss.CreatedAt = t
	if lastRun.Valid {
		lr, err := parseTime(lastRun.String)
		if err != nil {
			return SavedSearch{}, fmt.Errorf("parsing last_run_at: %w", err)
		}
		ss.LastRunAt = &lr
	}
	return ss, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalambet/gapscout/internal/search"
)

// PGStore is the Postgres-backed Repository for hosted deployments.
type PGStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Repository = (*PGStore)(nil)

// OpenPostgres connects to connString and runs pending migrations. A
// non-empty serviceKey is used as the password when the URL carries none.
func OpenPostgres(ctx context.Context, connString, serviceKey string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}
	if cfg.ConnConfig.Password == "" && serviceKey != "" {
		cfg.ConnConfig.Password = serviceKey
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PGStore{pool: pool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var exists int
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = $1", m.version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.body); err != nil {
				return fmt.Errorf("applying migration %s: %w", m.name, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", m.version); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// --- Problems ---

const pgProblemColumns = `id, title, domain, role, overview, gap, automation, action, source_type, source_url,
	search_query, sentiment, quality_warnings, completeness, created_at`

func (s *PGStore) InsertProblems(ctx context.Context, problems []Problem) ([]Problem, error) {
	if len(problems) == 0 {
		return nil, nil
	}
	batch := prepareBatch(problems, s.now().UTC())

	var b pgx.Batch
	for _, p := range batch {
		enc, err := encodeProblem(p)
		if err != nil {
			return nil, err
		}
		b.Queue(`INSERT INTO curated_problems (`+pgProblemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12::jsonb, $13::jsonb, $14, $15)`,
			p.ID, p.Title, p.Domain, p.Role, p.Overview, p.Gap, p.Automation, string(enc.action),
			string(p.SourceType), p.SourceURL, p.SearchQuery, string(enc.sentiment), string(enc.warnings),
			p.Completeness, p.CreatedAt)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, &b).Close()
	})
	if err != nil {
		return nil, fmt.Errorf("inserting problems: %w", err)
	}
	return batch, nil
}

func (s *PGStore) ListProblems(ctx context.Context, f ProblemFilter) ([]Problem, error) {
	query := `SELECT ` + pgProblemColumns + ` FROM curated_problems`
	var args []any
	if f.Source != "" {
		query += ` WHERE source_type = $1`
		args = append(args, f.Source)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, seq ASC LIMIT $%d`, len(args)+1)
	args = append(args, f.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Problem
	for rows.Next() {
		p, err := scanPGProblem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) GetProblem(ctx context.Context, id string) (Problem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgProblemColumns+` FROM curated_problems WHERE id = $1`, id)
	p, err := scanPGProblem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Problem{}, ErrNotFound
	}
	return p, err
}

func scanPGProblem(r pgx.Row) (Problem, error) {
	var p Problem
	var enc problemJSON
	var sourceType string
	if err := r.Scan(&p.ID, &p.Title, &p.Domain, &p.Role, &p.Overview, &p.Gap, &p.Automation, &enc.action,
		&sourceType, &p.SourceURL, &p.SearchQuery, &enc.sentiment, &enc.warnings, &p.Completeness, &p.CreatedAt); err != nil {
		return Problem{}, err
	}
	p.SourceType = search.Source(sourceType)
	p.CreatedAt = p.CreatedAt.UTC()
	if err := enc.decodeInto(&p); err != nil {
		return Problem{}, err
	}
	return p, nil
}

// --- Saved searches ---

const pgSearchColumns = `id, user_id, search_type, query, sources, alert_enabled, alert_frequency, last_run_at, created_at`

func (s *PGStore) SaveSearch(ctx context.Context, in SavedSearch) (SavedSearch, error) {
	ss, err := prepareSearch(in, s.now().UTC())
	if err != nil {
		return SavedSearch{}, err
	}
	sources, err := json.Marshal(ss.Sources)
	if err != nil {
		return SavedSearch{}, fmt.Errorf("encoding sources: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO saved_searches (`+pgSearchColumns+`)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)`,
		ss.ID, ss.UserID, ss.SearchType, ss.Query, string(sources), ss.AlertEnabled, ss.AlertFrequency,
		ss.LastRunAt, ss.CreatedAt)
	if err != nil {
		return SavedSearch{}, err
	}
	return ss, nil
}

func (s *PGStore) ListSearches(ctx context.Context, userID string) ([]SavedSearch, error) {
	return s.querySearches(ctx, `SELECT `+pgSearchColumns+` FROM saved_searches
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PGStore) ListAlertingSearches(ctx context.Context) ([]SavedSearch, error) {
	return s.querySearches(ctx, `SELECT `+pgSearchColumns+` FROM saved_searches
		WHERE alert_enabled AND alert_frequency <> $1 ORDER BY created_at ASC`, FrequencyNever)
}

func (s *PGStore) querySearches(ctx context.Context, query string, args ...any) ([]SavedSearch, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedSearch
	for rows.Next() {
		ss, err := scanPGSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func (s *PGStore) GetSearch(ctx context.Context, id string) (SavedSearch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgSearchColumns+` FROM saved_searches WHERE id = $1`, id)
	ss, err := scanPGSearch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SavedSearch{}, ErrNotFound
	}
	return ss, err
}

func (s *PGStore) UpdateSearch(ctx context.Context, id string, u SearchUpdate) (SavedSearch, error) {
	ss, err := s.GetSearch(ctx, id)
	if err != nil {
		return SavedSearch{}, err
	}
	if err := u.apply(&ss); err != nil {
		return SavedSearch{}, err
	}
	sources, err := json.Marshal(ss.Sources)
	if err != nil {
		return SavedSearch{}, fmt.Errorf("encoding sources: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE saved_searches
		SET search_type = $1, query = $2, sources = $3::jsonb, alert_enabled = $4, alert_frequency = $5
		WHERE id = $6`,
		ss.SearchType, ss.Query, string(sources), ss.AlertEnabled, ss.AlertFrequency, ss.ID)
	if err := requireTag(tag, err); err != nil {
		return SavedSearch{}, err
	}
	return ss, nil
}

func (s *PGStore) DeleteSearch(ctx context.Context, id string) error {
	return requireTag(s.pool.Exec(ctx, `DELETE FROM saved_searches WHERE id = $1`, id))
}

func (s *PGStore) TouchSearch(ctx context.Context, id string, at time.Time) error {
	return requireTag(s.pool.Exec(ctx, `UPDATE saved_searches SET last_run_at = $1 WHERE id = $2`, at.UTC(), id))
}

func scanPGSearch(r pgx.Row) (SavedSearch, error) {
	var ss SavedSearch
	var sources []byte
	if err := r.Scan(&ss.ID, &ss.UserID, &ss.SearchType, &ss.Query, &sources, &ss.AlertEnabled,
		&ss.AlertFrequency, &ss.LastRunAt, &ss.CreatedAt); err != nil {
		return SavedSearch{}, err
	}
	if err := json.Unmarshal(sources, &ss.Sources); err != nil {
		return SavedSearch{}, fmt.Errorf("decoding sources for %s: %w", ss.ID, err)
	}
	ss.CreatedAt = ss.CreatedAt.UTC()
	if ss.LastRunAt != nil {
		lr := ss.LastRunAt.UTC()
		ss.LastRunAt = &lr
	}
	return ss, nil
}

func requireTag(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

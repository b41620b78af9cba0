package baseline

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultRoot is the workspace-relative storage root.
const DefaultRoot = ".cleanroom"

// Store persists baseline bundles under <root>/baselines/<scenario>.json
// and keeps a history index in <root>/index.db. Writes go through a
// tmp-file + rename so a crashed write never replaces a good baseline
// with a truncated one.
type Store struct {
	root   string
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the storage layout under root if needed and opens the
// history index. Logger falls back to slog.Default() when nil.
func Open(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(root, "baselines"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create baseline directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(root, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open history index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history index: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY under concurrent record runs.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply index schema: %w", err)
	}

	return &Store{root: root, db: db, logger: logger}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the history index.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns where the bundle for a scenario lives.
func (s *Store) Path(scenarioName string) string {
	return filepath.Join(s.root, "baselines", scenarioName+".json")
}

// Save writes the bundle atomically and appends a history row. An
// existing baseline for the same scenario is replaced.
func (s *Store) Save(ctx context.Context, b *Baseline) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}

	path := s.Path(b.ScenarioName)
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write baseline %s: %w", path, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO baselines (scenario_name, digest, path, created_at) VALUES (?, ?, ?, ?)`,
		b.ScenarioName, b.Digest, path, b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to index baseline: %w", err)
	}

	s.logger.Debug("baseline saved",
		"scenario", b.ScenarioName,
		"digest", b.Digest,
		"path", path,
	)
	return nil
}

// Load reads and validates the bundle for a scenario. A missing file is
// a NotFoundError; anything unreadable in an existing file is a
// ValidationError.
func (s *Store) Load(scenarioName string) (*Baseline, error) {
	path := s.Path(scenarioName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Scenario: scenarioName, Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline %s: %w", path, err)
	}

	b, err := Decode(data)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Path = path
			return nil, ve
		}
		return nil, err
	}
	if b.ScenarioName != scenarioName {
		return nil, &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("bundle names scenario %q, expected %q", b.ScenarioName, scenarioName),
		}
	}
	return b, nil
}

// HistoryEntry is one recorded generation of a scenario's baseline.
type HistoryEntry struct {
	Digest    string
	Path      string
	CreatedAt time.Time
}

// History returns recorded generations for a scenario, newest first.
func (s *Store) History(ctx context.Context, scenarioName string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT digest, path, created_at FROM baselines WHERE scenario_name = ? ORDER BY id DESC`,
		scenarioName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var created string
		if err := rows.Scan(&e.Digest, &e.Path, &created); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("failed to parse history timestamp %q: %w", created, err)
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

// Latest resolves the newest recorded generation for a scenario from
// the history index. No recorded generation is a NotFoundError.
func (s *Store) Latest(ctx context.Context, scenarioName string) (HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT digest, path, created_at FROM baselines WHERE scenario_name = ? ORDER BY id DESC LIMIT 1`,
		scenarioName,
	)

	var e HistoryEntry
	var created string
	err := row.Scan(&e.Digest, &e.Path, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return HistoryEntry{}, &NotFoundError{Scenario: scenarioName, Path: s.Path(scenarioName)}
	}
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to resolve latest baseline: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to parse history timestamp %q: %w", created, err)
	}
	e.CreatedAt = t
	return e, nil
}

// writeAtomic writes data to a sibling tmp file, fsyncs it, and renames
// it over the target.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

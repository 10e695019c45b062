package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultHistoryLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt *sql.Stmt
	getRunStmt    *sql.Stmt
}

var (
	sqliteOpen              = sql.Open
	sqlitePrepareStatements = (*SQLiteStore).prepareStatements
)

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sqliteOpen("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := sqlitePrepareStatements(st); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			dataset TEXT NOT NULL,
			stage TEXT NOT NULL,
			eval_type TEXT NOT NULL,
			metric TEXT NOT NULL,
			score REAL NOT NULL,
			total_count INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			report_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_model_dataset ON runs(model, dataset)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()

	insert, err := s.db.PrepareContext(ctx, `
		INSERT INTO runs (
			id, model, dataset, stage, eval_type, metric, score, total_count,
			started_at, finished_at, report_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare insert run: %w", err)
	}
	s.insertRunStmt = insert

	get, err := s.db.PrepareContext(ctx, `
		SELECT id, model, dataset, stage, eval_type, metric, score, total_count,
			started_at, finished_at, report_json
		FROM runs WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("store: prepare get run: %w", err)
	}
	s.getRunStmt = get

	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	for _, stmt := range []*sql.Stmt{s.insertRunStmt, s.getRunStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun persists a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if run == nil {
		return errors.New("store: nil run")
	}

	id := strings.TrimSpace(run.ID)
	if id == "" {
		return errors.New("store: empty run id")
	}
	if strings.TrimSpace(run.Model) == "" || strings.TrimSpace(run.Dataset) == "" {
		return errors.New("store: missing model/dataset")
	}
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		return errors.New("store: missing run timestamps")
	}

	reportJSON := []byte("null")
	if run.Report != nil {
		var err error
		reportJSON, err = json.Marshal(run.Report)
		if err != nil {
			return fmt.Errorf("store: marshal run report: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := tx.StmtContext(ctx, s.insertRunStmt)
	defer stmt.Close()

	_, err = stmt.ExecContext(
		ctx,
		id,
		run.Model,
		run.Dataset,
		run.Stage,
		run.EvalType,
		run.Metric,
		run.Score,
		run.TotalCount,
		run.StartedAt.UTC().UnixMilli(),
		run.FinishedAt.UTC().UnixMilli(),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit run: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty run id")
	}

	row := s.getRunStmt.QueryRowContext(ctx, id)
	rec, err := scanRunRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	model := strings.TrimSpace(filter.Model)
	dataset := strings.TrimSpace(filter.Dataset)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, model, dataset, stage, eval_type, metric, score, total_count,
		started_at, finished_at, report_json FROM runs WHERE 1=1`)

	var args []any
	if model != "" {
		sb.WriteString(` AND model = ?`)
		args = append(args, model)
	}
	if dataset != "" {
		sb.WriteString(` AND dataset = ?`)
		args = append(args, dataset)
	}
	if !filter.Since.IsZero() {
		sb.WriteString(` AND started_at >= ?`)
		args = append(args, filter.Since.UTC().UnixMilli())
	}
	if !filter.Until.IsZero() {
		sb.WriteString(` AND started_at <= ?`)
		args = append(args, filter.Until.UTC().UnixMilli())
	}
	sb.WriteString(` ORDER BY started_at DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRunRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return out, nil
}

func scanRunRow(scan func(dest ...any) error) (*RunRecord, error) {
	var (
		id           string
		model        string
		dataset      string
		stage        string
		evalType     string
		metric       string
		score        float64
		totalCount   int
		startedAtMS  int64
		finishedAtMS int64
		reportJSON   sql.NullString
	)
	if err := scan(&id, &model, &dataset, &stage, &evalType, &metric, &score,
		&totalCount, &startedAtMS, &finishedAtMS, &reportJSON); err != nil {
		return nil, err
	}

	report, err := decodeReport(reportJSON)
	if err != nil {
		return nil, fmt.Errorf("decode run report: %w", err)
	}

	return &RunRecord{
		ID:         id,
		Model:      model,
		Dataset:    dataset,
		Stage:      stage,
		EvalType:   evalType,
		Metric:     metric,
		Score:      score,
		TotalCount: totalCount,
		StartedAt:  time.UnixMilli(startedAtMS).UTC(),
		FinishedAt: time.UnixMilli(finishedAtMS).UTC(),
		Report:     report,
	}, nil
}

func decodeReport(reportJSON sql.NullString) (map[string]any, error) {
	if !reportJSON.Valid {
		return nil, nil
	}
	raw := strings.TrimSpace(reportJSON.String)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, err
	}
	return report, nil
}

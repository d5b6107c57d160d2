package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file JobStore and run store for the CLI's local
// mode. It mirrors the Postgres upsert semantics and run transitions.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:" for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertSQL = `INSERT INTO discovered_jobs
	(id, user_id, url, title, snippet, company_slug, ats_type, source, discovered_at,
	 salary_min, salary_max, salary_currency, salary_attempts, created_at, updated_at)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT (user_id, url) DO UPDATE SET
	title = excluded.title,
	snippet = excluded.snippet,
	company_slug = excluded.company_slug,
	ats_type = excluded.ats_type,
	source = excluded.source,
	discovered_at = excluded.discovered_at,
	salary_min = CASE WHEN discovered_jobs.salary_min IS NULL AND discovered_jobs.salary_max IS NULL
		THEN excluded.salary_min ELSE discovered_jobs.salary_min END,
	salary_max = CASE WHEN discovered_jobs.salary_min IS NULL AND discovered_jobs.salary_max IS NULL
		THEN excluded.salary_max ELSE discovered_jobs.salary_max END,
	salary_currency = CASE WHEN discovered_jobs.salary_min IS NULL AND discovered_jobs.salary_max IS NULL
		THEN excluded.salary_currency ELSE discovered_jobs.salary_currency END,
	salary_attempts = discovered_jobs.salary_attempts + excluded.salary_attempts,
	updated_at = excluded.updated_at
 RETURNING id`

func (s *SQLiteStore) UpsertDiscoveredJob(ctx context.Context, p UpsertParams) (UpsertResult, error) {
	if p.ProposedID == uuid.Nil {
		p.ProposedID = uuid.New()
	}
	now := s.now()
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = now
	}
	lo, hi, currency := p.salaryColumns()

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, sqliteUpsertSQL,
		p.ProposedID, p.UserID, p.Job.URL, p.Job.Title, p.Job.Snippet, p.Job.CompanySlug,
		p.Job.ATSType, p.Job.Source, p.DiscoveredAt.UTC(), lo, hi, currency, p.attemptIncrement(), now, now,
	).Scan(&id)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert discovered job: %w", err)
	}
	return UpsertResult{ID: id, Inserted: id == p.ProposedID}, nil
}

func (s *SQLiteStore) FilterSalaryCandidates(ctx context.Context, userID uuid.UUID, urls []string, maxAttempts int) ([]string, error) {
	if len(urls) == 0 {
		return []string{}, nil
	}

	args := []any{userID}
	for _, u := range urls {
		args = append(args, u)
	}
	args = append(args, maxAttempts)

	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM discovered_jobs
		 WHERE user_id = ? AND url IN (`+placeholders(len(urls))+`)
		   AND (salary_min IS NOT NULL OR salary_max IS NOT NULL OR salary_attempts >= ?)`, args...)
	if err != nil {
		return nil, fmt.Errorf("filter salary candidates: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		done[u] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter salary candidates: %w", err)
	}

	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !done[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *SQLiteStore) ListSalaryCandidates(ctx context.Context, userID uuid.UUID, maxAttempts, limit int) ([]*models.DiscoveredJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM discovered_jobs
		 WHERE user_id = ? AND salary_min IS NULL AND salary_max IS NULL AND salary_attempts < ?
		 ORDER BY discovered_at DESC LIMIT ?`, userID, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list salary candidates: %w", err)
	}
	return scanSQLJobs(rows)
}

func (s *SQLiteStore) ApplySalary(ctx context.Context, jobID uuid.UUID, salary models.Salary) (bool, error) {
	lo, hi, currency := UpsertParams{Salary: &salary}.salaryColumns()
	if lo == nil && hi == nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovered_jobs
		 SET salary_min = ?, salary_max = ?, salary_currency = ?,
		     salary_attempts = salary_attempts + 1, updated_at = ?
		 WHERE id = ? AND salary_min IS NULL AND salary_max IS NULL`,
		lo, hi, currency, s.now(), jobID)
	if err != nil {
		return false, fmt.Errorf("apply salary: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) MarkSalaryAttempted(ctx context.Context, jobIDs []uuid.UUID) error {
	if len(jobIDs) == 0 {
		return nil
	}
	args := []any{s.now()}
	for _, id := range jobIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE discovered_jobs SET salary_attempts = salary_attempts + 1, updated_at = ?
		 WHERE id IN (`+placeholders(len(jobIDs))+`)`, args...)
	if err != nil {
		return fmt.Errorf("mark salary attempted: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUnscoredJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.DiscoveredJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM discovered_jobs
		 WHERE user_id = ? AND match_score IS NULL
		 ORDER BY discovered_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscored jobs: %w", err)
	}
	return scanSQLJobs(rows)
}

func (s *SQLiteStore) CountUnscoredJobs(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discovered_jobs WHERE user_id = ? AND match_score IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unscored jobs: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) SetMatchScore(ctx context.Context, jobID uuid.UUID, score int, source string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovered_jobs SET match_score = ?, match_source = ?, updated_at = ?
		 WHERE id = ? AND match_score IS NULL`, score, source, s.now(), jobID)
	if err != nil {
		return false, fmt.Errorf("set match score: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) ListDiscoveredJobs(ctx context.Context, filter JobFilter) ([]*models.DiscoveredJob, int, error) {
	conditions := []string{"user_id = ?"}
	args := []any{filter.UserID}
	if filter.ATSType != "" {
		conditions = append(conditions, "ats_type = ?")
		args = append(args, filter.ATSType)
	}
	if filter.OnlyScored {
		conditions = append(conditions, "match_score IS NOT NULL")
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM discovered_jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count discovered jobs: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM discovered_jobs WHERE `+where+`
		 ORDER BY match_score IS NULL, match_score DESC, discovered_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list discovered jobs: %w", err)
	}
	jobs, err := scanSQLJobs(rows)
	return jobs, total, err
}

func scanSQLJobs(rows *sql.Rows) ([]*models.DiscoveredJob, error) {
	defer rows.Close()

	jobs := []*models.DiscoveredJob{}
	for rows.Next() {
		var j models.DiscoveredJob
		if err := rows.Scan(&j.ID, &j.UserID, &j.URL, &j.Title, &j.Snippet, &j.CompanySlug,
			&j.ATSType, &j.Source, &j.DiscoveredAt, &j.SalaryMin, &j.SalaryMax, &j.SalaryCurrency,
			&j.SalaryAttempts, &j.MatchScore, &j.MatchSource, &j.IsReviewed,
			&j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan discovered job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, user_id, type, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.Type, run.Status, run.CreatedAt.UTC(), run.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var (
		r      models.Run
		stats  sql.NullString
		errMsg sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, status, stats, error_message, started_at, completed_at, created_at, updated_at
		 FROM pipeline_runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &r.Type, &r.Status, &stats, &errMsg,
		&r.StartedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if stats.Valid {
		r.Stats = []byte(stats.String)
	}
	if errMsg.Valid {
		r.ErrorMessage = &errMsg.String
	}
	return &r, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error {
	params := &runUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM pipeline_runs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get run status: %w", err)
	}
	if !canTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := s.now()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{status, now}
	if status == models.RunStatusRunning {
		sets = append(sets, "started_at = ?")
		args = append(args, now)
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		sets = append(sets, "completed_at = ?")
		args = append(args, now)
	}
	if params.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *params.ErrorMessage)
	}
	if params.Stats != nil {
		sets = append(sets, "stats = ?")
		args = append(args, string(params.Stats))
	}
	args = append(args, id, current)

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, current)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var _ JobStore = (*SQLiteStore)(nil)

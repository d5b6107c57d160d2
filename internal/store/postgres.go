package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Collaborators ---

func (s *PostgresStore) GetPreferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error) {
	var (
		p        models.UserPreferences
		workType []byte
		mode     *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT target_roles, work_type, location_zip, target_company_urls, search_mode, auto_discovery
		 FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.TargetRoles, &workType, &p.LocationZip, &p.TargetCompanyURLs, &mode, &p.AutoDiscovery)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	// work_type is JSONB holding either a string or a list.
	if len(workType) > 0 {
		if err := json.Unmarshal(workType, &p.WorkTypes); err != nil {
			return nil, fmt.Errorf("decode work_type: %w", err)
		}
	}
	if mode != nil {
		p.SearchMode = *mode
	}
	return &p, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, userID uuid.UUID) (quota.Subscription, error) {
	var sub quota.Subscription
	err := s.pool.QueryRow(ctx,
		`SELECT tier, status FROM subscriptions WHERE user_id = $1`, userID,
	).Scan(&sub.Tier, &sub.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return quota.Subscription{}, nil
	}
	if err != nil {
		return quota.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// GetResumeText returns the newest non-empty extracted resume text, or "" when
// the user has none.
func (s *PostgresStore) GetResumeText(ctx context.Context, userID uuid.UUID) (string, error) {
	var text string
	err := s.pool.QueryRow(ctx,
		`SELECT extracted_text FROM resumes
		 WHERE user_id = $1 AND extracted_text IS NOT NULL AND extracted_text <> ''
		 ORDER BY created_at DESC LIMIT 1`, userID,
	).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get resume text: %w", err)
	}
	return text, nil
}

func (s *PostgresStore) ListAutoDiscoveryUsers(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM profiles WHERE auto_discovery ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list auto discovery users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Discovered Jobs ---

// The salary columns take the new value only while both stored bounds are
// null. match_score and is_reviewed are never touched.
const upsertJobSQL = `INSERT INTO discovered_jobs
	(id, user_id, url, title, snippet, company_slug, ats_type, source, discovered_at,
	 salary_min, salary_max, salary_currency, salary_attempts, created_at, updated_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
 ON CONFLICT (user_id, url) DO UPDATE SET
	title = EXCLUDED.title,
	snippet = EXCLUDED.snippet,
	company_slug = EXCLUDED.company_slug,
	ats_type = EXCLUDED.ats_type,
	source = EXCLUDED.source,
	discovered_at = EXCLUDED.discovered_at,
	salary_min = CASE WHEN discovered_jobs.salary_min IS NULL AND discovered_jobs.salary_max IS NULL
		THEN EXCLUDED.salary_min ELSE discovered_jobs.salary_min END,
	salary_max = CASE WHEN discovered_jobs.salary_min IS NULL AND discovered_jobs.salary_max IS NULL
		THEN EXCLUDED.salary_max ELSE discovered_jobs.salary_max END,
	salary_currency = CASE WHEN discovered_jobs.salary_min IS NULL AND discovered_jobs.salary_max IS NULL
		THEN EXCLUDED.salary_currency ELSE discovered_jobs.salary_currency END,
	salary_attempts = discovered_jobs.salary_attempts + EXCLUDED.salary_attempts,
	updated_at = NOW()
 RETURNING id`

// UpsertDiscoveredJob inserts or refreshes one job in a single statement, so
// concurrent runs for the same user never create duplicate rows.
func (s *PostgresStore) UpsertDiscoveredJob(ctx context.Context, p UpsertParams) (UpsertResult, error) {
	if p.ProposedID == uuid.Nil {
		p.ProposedID = uuid.New()
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = time.Now().UTC()
	}
	lo, hi, currency := p.salaryColumns()

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, upsertJobSQL,
		p.ProposedID, p.UserID, p.Job.URL, p.Job.Title, p.Job.Snippet, p.Job.CompanySlug,
		p.Job.ATSType, p.Job.Source, p.DiscoveredAt, lo, hi, currency, p.attemptIncrement(),
	).Scan(&id)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert discovered job: %w", err)
	}
	return UpsertResult{ID: id, Inserted: id == p.ProposedID}, nil
}

// FilterSalaryCandidates returns the subset of urls that still need salary
// enrichment: not stored yet, or stored with no salary and attempts left.
func (s *PostgresStore) FilterSalaryCandidates(ctx context.Context, userID uuid.UUID, urls []string, maxAttempts int) ([]string, error) {
	if len(urls) == 0 {
		return []string{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT url FROM discovered_jobs
		 WHERE user_id = $1 AND url = ANY($2)
		   AND (salary_min IS NOT NULL OR salary_max IS NOT NULL OR salary_attempts >= $3)`,
		userID, urls, maxAttempts)
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

const jobColumns = `id, user_id, url, title, snippet, company_slug, ats_type, source, discovered_at,
	salary_min, salary_max, salary_currency, salary_attempts, match_score, match_source, is_reviewed,
	created_at, updated_at`

func (s *PostgresStore) ListSalaryCandidates(ctx context.Context, userID uuid.UUID, maxAttempts, limit int) ([]*models.DiscoveredJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM discovered_jobs
		 WHERE user_id = $1 AND salary_min IS NULL AND salary_max IS NULL AND salary_attempts < $2
		 ORDER BY discovered_at DESC LIMIT $3`, userID, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list salary candidates: %w", err)
	}
	return scanJobs(rows)
}

// ApplySalary writes salary only to a row that has none. It reports whether
// the row was updated.
func (s *PostgresStore) ApplySalary(ctx context.Context, jobID uuid.UUID, salary models.Salary) (bool, error) {
	lo, hi, currency := UpsertParams{Salary: &salary}.salaryColumns()
	if lo == nil && hi == nil {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovered_jobs
		 SET salary_min = $2, salary_max = $3, salary_currency = $4,
		     salary_attempts = salary_attempts + 1, updated_at = NOW()
		 WHERE id = $1 AND salary_min IS NULL AND salary_max IS NULL`,
		jobID, lo, hi, currency)
	if err != nil {
		return false, fmt.Errorf("apply salary: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkSalaryAttempted(ctx context.Context, jobIDs []uuid.UUID) error {
	if len(jobIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE discovered_jobs SET salary_attempts = salary_attempts + 1, updated_at = NOW()
		 WHERE id = ANY($1)`, jobIDs)
	if err != nil {
		return fmt.Errorf("mark salary attempted: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUnscoredJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.DiscoveredJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM discovered_jobs
		 WHERE user_id = $1 AND match_score IS NULL
		 ORDER BY discovered_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscored jobs: %w", err)
	}
	return scanJobs(rows)
}

func (s *PostgresStore) CountUnscoredJobs(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM discovered_jobs WHERE user_id = $1 AND match_score IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unscored jobs: %w", err)
	}
	return n, nil
}

// SetMatchScore writes a score only to an unscored row. It reports whether the
// row was updated.
func (s *PostgresStore) SetMatchScore(ctx context.Context, jobID uuid.UUID, score int, source string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovered_jobs SET match_score = $2, match_source = $3, updated_at = NOW()
		 WHERE id = $1 AND match_score IS NULL`, jobID, score, source)
	if err != nil {
		return false, fmt.Errorf("set match score: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListDiscoveredJobs(ctx context.Context, filter JobFilter) ([]*models.DiscoveredJob, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.ATSType != "" {
		conditions = append(conditions, fmt.Sprintf("ats_type = $%d", argIdx))
		args = append(args, filter.ATSType)
		argIdx++
	}
	if filter.OnlyScored {
		conditions = append(conditions, "match_score IS NOT NULL")
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM discovered_jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count discovered jobs: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM discovered_jobs WHERE %s
		 ORDER BY match_score DESC NULLS LAST, discovered_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list discovered jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	return jobs, total, err
}

func scanJobs(rows pgx.Rows) ([]*models.DiscoveredJob, error) {
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

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, user_id, type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.UserID, run.Type, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var r models.Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, type, status, stats, error_message, started_at, completed_at, created_at, updated_at
		 FROM pipeline_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.UserID, &r.Type, &r.Status, &r.Stats, &r.ErrorMessage,
		&r.StartedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error {
	params := &runUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM pipeline_runs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get run status: %w", err)
	}

	if !canTransition(currentStatus, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE pipeline_runs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.RunStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Stats != nil {
		query += fmt.Sprintf(", stats = $%d", argIdx)
		args = append(args, params.Stats)
		argIdx++
	}

	// Guard against a concurrent transition between the read and the write.
	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, currentStatus)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, currentStatus)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)

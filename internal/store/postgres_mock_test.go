package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresStore(mock)
}

func TestPostgresStore_UpsertInserted(t *testing.T) {
	mock, s := newMock(t)
	proposed, userID := uuid.New(), uuid.New()
	job := models.ClassifiedJob{URL: "https://jobs.lever.co/acme/1", Title: "PM", ATSType: models.ATSLever, CompanySlug: "acme", Source: "google"}

	mock.ExpectQuery(`INSERT INTO discovered_jobs`).
		WithArgs(proposed, userID, job.URL, job.Title, job.Snippet, job.CompanySlug, job.ATSType, job.Source,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(proposed.String()))

	res, err := s.UpsertDiscoveredJob(context.Background(), UpsertParams{
		ProposedID: proposed, UserID: userID, Job: job, SalaryAttempted: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, proposed, res.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertExistingRow(t *testing.T) {
	mock, s := newMock(t)
	existing := uuid.New()

	mock.ExpectQuery(`ON CONFLICT \(user_id, url\) DO UPDATE`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing.String()))

	res, err := s.UpsertDiscoveredJob(context.Background(), UpsertParams{
		UserID: uuid.New(), Job: models.ClassifiedJob{URL: "https://jobs.lever.co/acme/1"},
	})
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.Equal(t, existing, res.ID)
}

func TestPostgresStore_UpsertError(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(`INSERT INTO discovered_jobs`).WillReturnError(errors.New("conn reset"))

	_, err := s.UpsertDiscoveredJob(context.Background(), UpsertParams{UserID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert discovered job")
}

func TestPostgresStore_FilterSalaryCandidates(t *testing.T) {
	mock, s := newMock(t)
	userID := uuid.New()
	urls := []string{"u1", "u2", "u3"}

	mock.ExpectQuery(`SELECT url FROM discovered_jobs`).
		WithArgs(userID, urls, 3).
		WillReturnRows(pgxmock.NewRows([]string{"url"}).AddRow("u2"))

	got, err := s.FilterSalaryCandidates(context.Background(), userID, urls, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FilterSalaryCandidatesEmpty(t *testing.T) {
	mock, s := newMock(t)

	got, err := s.FilterSalaryCandidates(context.Background(), uuid.New(), nil, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMatchScoreAlreadyScored(t *testing.T) {
	mock, s := newMock(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE discovered_jobs SET match_score = \$2`).
		WithArgs(id, 77, models.MatchSourceAI).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.SetMatchScore(context.Background(), id, 77, models.MatchSourceAI)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStore_CountUnscoredJobs(t *testing.T) {
	mock, s := newMock(t)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM discovered_jobs WHERE user_id = \$1 AND match_score IS NULL`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountUnscoredJobs(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkSalaryAttempted(t *testing.T) {
	mock, s := newMock(t)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectExec(`UPDATE discovered_jobs SET salary_attempts = salary_attempts \+ 1`).
		WithArgs(ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, s.MarkSalaryAttempted(context.Background(), ids))
	require.NoError(t, s.MarkSalaryAttempted(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplySalaryEmptyIsNoop(t *testing.T) {
	mock, s := newMock(t)

	ok, err := s.ApplySalary(context.Background(), uuid.New(), models.Salary{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubscriptionMissing(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(`SELECT tier, status FROM subscriptions`).WillReturnError(pgx.ErrNoRows)

	sub, err := s.GetSubscription(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, quota.Subscription{}, sub)
}

func TestPostgresStore_GetResumeTextMissing(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(`SELECT extracted_text FROM resumes`).WillReturnError(pgx.ErrNoRows)

	text, err := s.GetResumeText(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPostgresStore_GetPreferencesNotFound(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectQuery(`FROM profiles WHERE user_id`).WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPreferences(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpdateRunStatusInvalidTransition(t *testing.T) {
	mock, s := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT status FROM pipeline_runs`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(models.RunStatusCompleted))

	err := s.UpdateRunStatus(context.Background(), id, models.RunStatusRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatusLostRace(t *testing.T) {
	mock, s := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT status FROM pipeline_runs`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(models.RunStatusRunning))
	mock.ExpectExec(`UPDATE pipeline_runs SET status = \$2`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), id, models.RunStatusCompleted, WithStats(map[string]int{"inserted": 1}))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatusPendingToFailed(t *testing.T) {
	mock, s := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT status FROM pipeline_runs`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(models.RunStatusPending))
	mock.ExpectExec(`completed_at = \$4, error_message = \$5 WHERE id = \$1 AND status = \$6`).
		WithArgs(id, models.RunStatusFailed, pgxmock.AnyArg(), pgxmock.AnyArg(), "boom", models.RunStatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunStatus(context.Background(), id, models.RunStatusFailed, WithErrorMessage("boom"))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(models.RunStatusPending, models.RunStatusRunning))
	assert.True(t, canTransition(models.RunStatusRunning, models.RunStatusCompleted))
	assert.True(t, canTransition(models.RunStatusRunning, models.RunStatusFailed))
	assert.False(t, canTransition(models.RunStatusCompleted, models.RunStatusRunning))
	assert.False(t, canTransition(models.RunStatusFailed, models.RunStatusCompleted))
}

func TestNormalizePage(t *testing.T) {
	limit, offset := normalizePage(0, 0)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)

	limit, offset = normalizePage(3, 500)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 200, offset)
}

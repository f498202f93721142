package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"artifact-job-service/internal/entity"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate job id")

	// ErrConflict means a conditional update found the row in a different
	// status than expected: the caller lost a race and must discard its own
	// update rather than retry it.
	ErrConflict = errors.New("status conflict")
)

const uniqueViolation = "23505"

// JobRepository is the job ledger. Every status change goes through a
// conditional UPDATE guarded by the expected current status, which is the
// only concurrency-control primitive the system relies on.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, j *entity.Job) error {
	if len(j.Payload) == 0 {
		j.Payload = json.RawMessage(`{}`)
	}

	const q = `
INSERT INTO jobs (id, kind, status, payload, payload_key, max_attempts)
VALUES ($1, $2, 'queued', $3, $4, $5)
RETURNING created_at, updated_at;
`
	err := r.pool.QueryRow(ctx, q, j.ID, j.Kind, j.Payload, j.PayloadKey, j.MaxAttempts).
		Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateID
		}
		return err
	}
	j.Status = entity.StatusQueued
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, kind, status, payload, payload_key, result_key, content_type,
       filename, error, attempts, max_attempts, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	var (
		j          entity.Job
		statusText string
		payload    []byte
	)

	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&j.ID,
		&j.Kind,
		&statusText,
		&payload,
		&j.PayloadKey,
		&j.ResultKey,
		&j.ContentType,
		&j.Filename,
		&j.Error,
		&j.Attempts,
		&j.MaxAttempts,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	j.Status = entity.JobStatus(statusText)
	j.Payload = json.RawMessage(payload)
	return &j, nil
}

// ClaimProcessing performs the queued -> processing transition. ErrConflict
// means another worker already claimed the job.
func (r *JobRepository) ClaimProcessing(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE jobs SET status='processing', updated_at=now()
WHERE id=$1 AND status='queued';
`
	return r.conditional(ctx, q, id)
}

// ReclaimStale takes over a job stuck in processing, which only happens when
// the worker that claimed it died before writing an outcome. The updated_at
// guard makes sure a job actively being worked on is left alone and that
// exactly one redelivery wins the takeover.
func (r *JobRepository) ReclaimStale(ctx context.Context, id uuid.UUID, staleBefore time.Time) error {
	const q = `
UPDATE jobs SET updated_at=now()
WHERE id=$1 AND status='processing' AND updated_at < $2;
`
	return r.conditional(ctx, q, id, staleBefore)
}

// CompleteDone performs processing -> done with the result metadata.
func (r *JobRepository) CompleteDone(ctx context.Context, id uuid.UUID, attempts int, resultKey, contentType, filename string) error {
	const q = `
UPDATE jobs SET status='done', attempts=$2, result_key=$3, content_type=$4,
       filename=$5, error=NULL, updated_at=now()
WHERE id=$1 AND status='processing';
`
	return r.conditional(ctx, q, id, attempts, resultKey, contentType, filename)
}

// RequeueRetry performs processing -> queued after a retryable failure.
func (r *JobRepository) RequeueRetry(ctx context.Context, id uuid.UUID, attempts int) error {
	const q = `
UPDATE jobs SET status='queued', attempts=$2, updated_at=now()
WHERE id=$1 AND status='processing';
`
	return r.conditional(ctx, q, id, attempts)
}

// CompleteFailed performs processing -> failed once the attempt ceiling is hit.
func (r *JobRepository) CompleteFailed(ctx context.Context, id uuid.UUID, attempts int, errText string) error {
	const q = `
UPDATE jobs SET status='failed', attempts=$2, error=$3, updated_at=now()
WHERE id=$1 AND status='processing';
`
	return r.conditional(ctx, q, id, attempts, errText)
}

func (r *JobRepository) conditional(ctx context.Context, q string, id uuid.UUID, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

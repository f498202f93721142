package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"artifact-job-service/internal/entity"
)

// ArtifactRepository stores job inputs and results as blobs. Overwrite on
// conflict is fine: keys embed the job id and are never shared across jobs.
type ArtifactRepository struct {
	pool *pgxpool.Pool
}

func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepository {
	return &ArtifactRepository{pool: pool}
}

func (r *ArtifactRepository) Put(ctx context.Context, key, contentType string, data []byte) error {
	const q = `
INSERT INTO artifacts (key, content_type, data)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET content_type=EXCLUDED.content_type, data=EXCLUDED.data;
`
	_, err := r.pool.Exec(ctx, q, key, contentType, data)
	return err
}

func (r *ArtifactRepository) Get(ctx context.Context, key string) (*entity.Artifact, error) {
	const q = `
SELECT key, content_type, data, created_at
FROM artifacts
WHERE key = $1;
`
	var a entity.Artifact
	if err := r.pool.QueryRow(ctx, q, key).Scan(&a.Key, &a.ContentType, &a.Data, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

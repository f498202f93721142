package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"artifact-job-service/internal/entity"
	"artifact-job-service/internal/queue"
	"artifact-job-service/internal/repository/postgresql"
	"artifact-job-service/internal/signer"
)

var (
	ErrUnknownKind    = errors.New("unknown job kind")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNotReady       = errors.New("job is not done")
	ErrNotFound       = postgresql.ErrNotFound
)

// Ledger port (implementation: postgresql.JobRepository).
type JobLedger interface {
	Create(ctx context.Context, j *entity.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (*entity.Artifact, error)
}

// Admission only needs to enqueue; the worker side of the queue lives in
// internal/worker.
type JobQueue interface {
	Enqueue(ctx context.Context, m queue.Message) error
}

// KindSet is the read-only view of the handler registry the API needs.
type KindSet interface {
	Has(kind string) bool
	DefaultKind() (string, bool)
}

type Options struct {
	// Payloads above this many bytes are spilled to the artifact store.
	InlinePayloadLimit int
	MaxAttempts        int
}

type JobService struct {
	repo   JobLedger
	blobs  ArtifactStore
	queue  JobQueue
	kinds  KindSet
	signer *signer.Signer
	opts   Options
}

func NewJobService(repo JobLedger, blobs ArtifactStore, q JobQueue, kinds KindSet, sg *signer.Signer, opts Options) *JobService {
	if opts.InlinePayloadLimit <= 0 {
		opts.InlinePayloadLimit = 64 * 1024
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &JobService{repo: repo, blobs: blobs, queue: q, kinds: kinds, signer: sg, opts: opts}
}

// CreateJob admits a job: validate the kind, write the ledger row (queued),
// persist the payload, then enqueue the notification. The ledger write comes
// strictly before the queue write so a worker never sees a message for an
// unknown job.
func (s *JobService) CreateJob(ctx context.Context, kind string, payload json.RawMessage) (*entity.Job, error) {
	if kind == "" {
		def, ok := s.kinds.DefaultKind()
		if !ok {
			return nil, fmt.Errorf("%w: kind is required", ErrInvalidPayload)
		}
		kind = def
	}
	if !s.kinds.Has(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidPayload)
	}

	j := &entity.Job{
		ID:          uuid.New(),
		Kind:        kind,
		Status:      entity.StatusQueued,
		MaxAttempts: s.opts.MaxAttempts,
	}

	if len(payload) > s.opts.InlinePayloadLimit {
		key := entity.InputBlobKey(j.ID)
		if err := s.blobs.Put(ctx, key, "application/json", payload); err != nil {
			return nil, fmt.Errorf("store payload: %w", err)
		}
		j.PayloadKey = &key
		j.Payload = json.RawMessage(`{}`)
	} else {
		j.Payload = payload
	}

	if err := s.repo.Create(ctx, j); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, queue.Message{JobID: j.ID.String(), Kind: kind}); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return j, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// ResultArtifact loads the produced artifact for a done job.
func (s *JobService) ResultArtifact(ctx context.Context, id uuid.UUID) (*entity.Job, *entity.Artifact, error) {
	j, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if j.Status != entity.StatusDone || j.ResultKey == nil {
		return j, nil, ErrNotReady
	}

	art, err := s.blobs.Get(ctx, *j.ResultKey)
	if err != nil {
		return j, nil, err
	}
	return j, art, nil
}

// DownloadToken mints a time-limited capability token for a done job's result.
func (s *JobService) DownloadToken(ctx context.Context, id uuid.UUID) (string, error) {
	j, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if j.Status != entity.StatusDone || j.ResultKey == nil {
		return "", ErrNotReady
	}

	contentType := "application/octet-stream"
	if j.ContentType != nil {
		contentType = *j.ContentType
	}
	filename := ""
	if j.Filename != nil {
		filename = *j.Filename
	}

	return s.signer.Mint(*j.ResultKey, contentType, filename)
}

func (s *JobService) DownloadTTL() int {
	return int(s.signer.TTL().Seconds())
}

// Redeem exchanges a download token for the artifact it grants.
func (s *JobService) Redeem(ctx context.Context, token string) (*signer.Grant, *entity.Artifact, error) {
	grant, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil, err
	}
	art, err := s.blobs.Get(ctx, grant.Key)
	if err != nil {
		return grant, nil, err
	}
	return grant, art, nil
}

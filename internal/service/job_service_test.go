package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"artifact-job-service/internal/entity"
	"artifact-job-service/internal/queue"
	"artifact-job-service/internal/registry"
	"artifact-job-service/internal/repository/postgresql"
	"artifact-job-service/internal/service"
	"artifact-job-service/internal/signer"
)

// ---- fakes ----

// fakeLedger records operations in order so tests can assert the
// ledger-before-queue admission ordering.
type fakeLedger struct {
	jobs      map[uuid.UUID]*entity.Job
	createErr error
	ops       *[]string
}

func (r *fakeLedger) Create(ctx context.Context, j *entity.Job) error {
	if r.createErr != nil {
		return r.createErr
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	if r.jobs == nil {
		r.jobs = map[uuid.UUID]*entity.Job{}
	}
	cp := *j
	r.jobs[j.ID] = &cp
	if r.ops != nil {
		*r.ops = append(*r.ops, "create")
	}
	return nil
}

func (r *fakeLedger) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

type fakeQueue struct {
	msgs       []queue.Message
	enqueueErr error
	ops        *[]string
}

func (q *fakeQueue) Enqueue(ctx context.Context, m queue.Message) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.msgs = append(q.msgs, m)
	if q.ops != nil {
		*q.ops = append(*q.ops, "enqueue")
	}
	return nil
}

type fakeBlobs struct {
	blobs map[string]entity.Artifact
}

func (b *fakeBlobs) Put(ctx context.Context, key, contentType string, data []byte) error {
	if b.blobs == nil {
		b.blobs = map[string]entity.Artifact{}
	}
	b.blobs[key] = entity.Artifact{Key: key, ContentType: contentType, Data: data}
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, key string) (*entity.Artifact, error) {
	a, ok := b.blobs[key]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return &a, nil
}

// ---- helpers ----

func regWith(t *testing.T, kinds ...string) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, k := range kinds {
		if err := reg.Register(k, func(ctx context.Context, p json.RawMessage) (*registry.Result, error) {
			return &registry.Result{Data: []byte("ok")}, nil
		}); err != nil {
			t.Fatalf("register %s: %v", k, err)
		}
	}
	return reg
}

func newService(repo *fakeLedger, blobs *fakeBlobs, q *fakeQueue, reg *registry.Registry, opts service.Options) *service.JobService {
	sg := signer.New("test-secret", 15*time.Minute)
	return service.NewJobService(repo, blobs, q, reg, sg, opts)
}

// ---- tests ----

func TestCreateJob_UnknownKindRejectedBeforeAnyWrite(t *testing.T) {
	repo := &fakeLedger{}
	q := &fakeQueue{}
	svc := newService(repo, &fakeBlobs{}, q, regWith(t, "echo", "other"), service.Options{})

	_, err := svc.CreateJob(context.Background(), "nope", json.RawMessage(`{}`))
	if !errors.Is(err, service.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if len(repo.jobs) != 0 {
		t.Fatal("ledger must stay untouched on validation failure")
	}
	if len(q.msgs) != 0 {
		t.Fatal("queue must stay untouched on validation failure")
	}
}

func TestCreateJob_QueuedAndEnqueuedAfterLedgerWrite(t *testing.T) {
	var ops []string
	repo := &fakeLedger{ops: &ops}
	q := &fakeQueue{ops: &ops}
	svc := newService(repo, &fakeBlobs{}, q, regWith(t, "echo"), service.Options{MaxAttempts: 3})

	j, err := svc.CreateJob(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if j.Status != entity.StatusQueued {
		t.Fatalf("expected status queued, got %s", j.Status)
	}
	if j.MaxAttempts != 3 {
		t.Fatalf("expected max_attempts=3, got %d", j.MaxAttempts)
	}
	if len(q.msgs) != 1 || q.msgs[0].JobID != j.ID.String() || q.msgs[0].Kind != "echo" {
		t.Fatalf("unexpected queue message: %#v", q.msgs)
	}
	if strings.Join(ops, ",") != "create,enqueue" {
		t.Fatalf("expected ledger write before enqueue, got %v", ops)
	}

	// Status is immediately visible.
	got, err := svc.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get after create: %v", err)
	}
	if got.Status != entity.StatusQueued {
		t.Fatalf("expected queued, got %s", got.Status)
	}
}

func TestCreateJob_InvalidJSONPayloadRejected(t *testing.T) {
	svc := newService(&fakeLedger{}, &fakeBlobs{}, &fakeQueue{}, regWith(t, "echo"), service.Options{})

	_, err := svc.CreateJob(context.Background(), "echo", json.RawMessage(`{not json`))
	if !errors.Is(err, service.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestCreateJob_DefaultsToSingleRegisteredKind(t *testing.T) {
	q := &fakeQueue{}
	svc := newService(&fakeLedger{}, &fakeBlobs{}, q, regWith(t, "echo"), service.Options{})

	j, err := svc.CreateJob(context.Background(), "", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if j.Kind != "echo" {
		t.Fatalf("expected default kind echo, got %q", j.Kind)
	}
}

func TestCreateJob_MissingKindWithMultipleHandlersRejected(t *testing.T) {
	svc := newService(&fakeLedger{}, &fakeBlobs{}, &fakeQueue{}, regWith(t, "a", "b"), service.Options{})

	_, err := svc.CreateJob(context.Background(), "", json.RawMessage(`{}`))
	if !errors.Is(err, service.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestCreateJob_LargePayloadSpillsToBlobStore(t *testing.T) {
	blobs := &fakeBlobs{}
	svc := newService(&fakeLedger{}, blobs, &fakeQueue{}, regWith(t, "echo"),
		service.Options{InlinePayloadLimit: 16})

	payload := json.RawMessage(`{"text":"` + strings.Repeat("x", 64) + `"}`)
	j, err := svc.CreateJob(context.Background(), "echo", payload)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if j.PayloadKey == nil || *j.PayloadKey != entity.InputBlobKey(j.ID) {
		t.Fatalf("expected spilled payload key, got %v", j.PayloadKey)
	}
	a, ok := blobs.blobs[*j.PayloadKey]
	if !ok {
		t.Fatal("payload blob missing")
	}
	if string(a.Data) != string(payload) {
		t.Fatal("spilled payload bytes differ")
	}
}

func TestResultArtifact_NotReadyUntilDone(t *testing.T) {
	repo := &fakeLedger{jobs: map[uuid.UUID]*entity.Job{}}
	id := uuid.New()
	repo.jobs[id] = &entity.Job{ID: id, Kind: "echo", Status: entity.StatusProcessing}

	svc := newService(repo, &fakeBlobs{}, &fakeQueue{}, regWith(t, "echo"), service.Options{})

	_, _, err := svc.ResultArtifact(context.Background(), id)
	if !errors.Is(err, service.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := svc.DownloadToken(context.Background(), id); !errors.Is(err, service.ErrNotReady) {
		t.Fatalf("expected ErrNotReady from DownloadToken, got %v", err)
	}
}

func TestResultArtifact_RoundTripsHandlerBytes(t *testing.T) {
	repo := &fakeLedger{jobs: map[uuid.UUID]*entity.Job{}}
	blobs := &fakeBlobs{}

	id := uuid.New()
	key := entity.ResultBlobKey(id)
	ct := "text/plain"
	fn := "out.txt"
	repo.jobs[id] = &entity.Job{
		ID: id, Kind: "echo", Status: entity.StatusDone,
		ResultKey: &key, ContentType: &ct, Filename: &fn,
	}
	_ = blobs.Put(context.Background(), key, ct, []byte("hi"))

	svc := newService(repo, blobs, &fakeQueue{}, regWith(t, "echo"), service.Options{})

	_, art, err := svc.ResultArtifact(context.Background(), id)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(art.Data) != "hi" || art.ContentType != "text/plain" {
		t.Fatalf("unexpected artifact: %q %q", art.Data, art.ContentType)
	}

	// And the minted token redeems to the same bytes.
	token, err := svc.DownloadToken(context.Background(), id)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	grant, art2, err := svc.Redeem(context.Background(), token)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if string(art2.Data) != "hi" || grant.Filename != "out.txt" {
		t.Fatalf("unexpected redeemed artifact: %q %q", art2.Data, grant.Filename)
	}
}

func TestGetJob_UnknownIDNotFound(t *testing.T) {
	svc := newService(&fakeLedger{}, &fakeBlobs{}, &fakeQueue{}, regWith(t, "echo"), service.Options{})

	_, err := svc.GetJob(context.Background(), uuid.New())
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

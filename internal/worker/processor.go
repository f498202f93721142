package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"artifact-job-service/internal/entity"
	"artifact-job-service/internal/queue"
	"artifact-job-service/internal/registry"
	"artifact-job-service/internal/repository/postgresql"
)

// Ledger port for the worker side (implementation: postgresql.JobRepository).
type JobLedger interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ClaimProcessing(ctx context.Context, id uuid.UUID) error
	ReclaimStale(ctx context.Context, id uuid.UUID, staleBefore time.Time) error
	CompleteDone(ctx context.Context, id uuid.UUID, attempts int, resultKey, contentType, filename string) error
	RequeueRetry(ctx context.Context, id uuid.UUID, attempts int) error
	CompleteFailed(ctx context.Context, id uuid.UUID, attempts int, errText string) error
}

type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (*entity.Artifact, error)
}

type Requeuer interface {
	Enqueue(ctx context.Context, m queue.Message) error
}

type HandlerSource interface {
	Get(kind string) (registry.Handler, bool)
}

type Processor struct {
	repo     JobLedger
	blobs    ArtifactStore
	queue    Requeuer
	registry HandlerSource
	timeout  time.Duration

	// stale is how old a processing row must be before a redelivered message
	// may take it over; it must exceed timeout so a live execution is never
	// stolen.
	stale time.Duration

	log zerolog.Logger
}

func NewProcessor(repo JobLedger, blobs ArtifactStore, q Requeuer, reg HandlerSource, timeout, stale time.Duration, log zerolog.Logger) *Processor {
	if stale <= timeout {
		stale = timeout + time.Minute
	}
	return &Processor{
		repo:     repo,
		blobs:    blobs,
		queue:    q,
		registry: reg,
		timeout:  timeout,
		stale:    stale,
		log:      log,
	}
}

// Process runs the per-message execution protocol and reports whether the
// message may be acknowledged. False means a ledger or store write did not
// go through; the message is left unacked so the reaper redelivers it.
func (p *Processor) Process(ctx context.Context, msg queue.Message) bool {
	start := time.Now()

	id, err := uuid.Parse(msg.JobID)
	if err != nil {
		p.log.Warn().Str("job_id", msg.JobID).Msg("unparseable job id, dropping message")
		return true
	}
	log := p.log.With().Str("job_id", id.String()).Logger()

	job, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			log.Warn().Msg("message for unknown job, dropping")
			return true
		}
		log.Error().Err(err).Msg("ledger read failed, leaving message for redelivery")
		return false
	}

	// Duplicate-delivery guard: a terminal job is already settled.
	if job.Status.Terminal() {
		log.Debug().Str("status", string(job.Status)).Msg("job already terminal, dropping duplicate")
		return true
	}

	switch job.Status {
	case entity.StatusQueued:
		if err := p.repo.ClaimProcessing(ctx, id); err != nil {
			if errors.Is(err, postgresql.ErrConflict) {
				// Another worker holds the job.
				return true
			}
			log.Error().Err(err).Msg("claim failed")
			return false
		}
	case entity.StatusProcessing:
		// Only a redelivery lands here: either the owning worker is still
		// running, or it died after claiming. Take over only once the row
		// has gone stale. A conflict means the row is not stale yet; the
		// message must stay unacked, because if the owner is dead this
		// redelivery is the job's only route back to the queue. A live
		// owner settles the row and a later redelivery is dropped as
		// terminal; a dead one lets the row age into a reclaim.
		if err := p.repo.ReclaimStale(ctx, id, time.Now().Add(-p.stale)); err != nil {
			if errors.Is(err, postgresql.ErrConflict) {
				log.Debug().Msg("processing row not stale yet, leaving message for redelivery")
				return false
			}
			log.Error().Err(err).Msg("stale reclaim failed")
			return false
		}
		log.Warn().Msg("reclaimed job from a dead worker")
	}

	attempts := job.Attempts + 1
	log = log.With().Str("kind", job.Kind).Int("attempt", attempts).Logger()

	res, herr := p.execute(ctx, job)

	if herr == nil {
		key := entity.ResultBlobKey(id)
		if err := p.blobs.Put(ctx, key, res.ContentType, res.Data); err != nil {
			herr = fmt.Errorf("store result: %w", err)
		} else {
			switch err := p.repo.CompleteDone(ctx, id, attempts, key, res.ContentType, res.Filename); {
			case err == nil:
				log.Info().Int64("duration_ms", time.Since(start).Milliseconds()).Msg("job done")
				return true
			case errors.Is(err, postgresql.ErrConflict):
				// Lost the finalize race; the other outcome stands.
				return true
			default:
				log.Error().Err(err).Msg("finalize failed, leaving message for redelivery")
				return false
			}
		}
	}

	// Failure path: retry below the ceiling, fail at it.
	errText := herr.Error()
	if attempts < job.MaxAttempts {
		switch err := p.repo.RequeueRetry(ctx, id, attempts); {
		case err == nil:
		case errors.Is(err, postgresql.ErrConflict):
			return true
		default:
			log.Error().Err(err).Msg("requeue transition failed")
			return false
		}

		if err := p.queue.Enqueue(ctx, queue.Message{JobID: id.String(), Kind: job.Kind}); err != nil {
			// Row is already queued; the unacked message will be redelivered
			// and claim it normally.
			log.Error().Err(err).Msg("re-enqueue failed, relying on redelivery")
			return false
		}
		log.Warn().Str("error", errText).Msg("job failed, retrying")
		return true
	}

	switch err := p.repo.CompleteFailed(ctx, id, attempts, errText); {
	case err == nil:
		log.Warn().Str("error", errText).Int64("duration_ms", time.Since(start).Milliseconds()).Msg("job failed permanently")
		return true
	case errors.Is(err, postgresql.ErrConflict):
		return true
	default:
		log.Error().Err(err).Msg("fail transition failed")
		return false
	}
}

// execute resolves the payload and handler and runs the handler bounded by
// the configured timeout.
func (p *Processor) execute(ctx context.Context, job *entity.Job) (*registry.Result, error) {
	handler, ok := p.registry.Get(job.Kind)
	if !ok {
		// Admission validates kinds, so this is a deployment skew between
		// API and worker. Treat it as a normal handler failure so the retry
		// ceiling eventually surfaces it in the ledger.
		return nil, fmt.Errorf("no handler registered for kind %q", job.Kind)
	}

	payload := job.Payload
	if job.PayloadKey != nil {
		art, err := p.blobs.Get(ctx, *job.PayloadKey)
		if err != nil {
			return nil, fmt.Errorf("load payload blob: %w", err)
		}
		payload = json.RawMessage(art.Data)
	}

	return p.invoke(ctx, handler, payload)
}

// invoke runs the handler in its own goroutine and abandons the wait on
// timeout. Abandonment is not preemption: the goroutine may keep running,
// and its late result is discarded because the retry path has already moved
// the ledger on. Panics are converted to ordinary failures so a misbehaving
// handler cannot take the worker down.
func (p *Processor) invoke(ctx context.Context, h registry.Handler, payload json.RawMessage) (*registry.Result, error) {
	type outcome struct {
		res *registry.Result
		err error
	}
	out := make(chan outcome, 1)

	hctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		res, err := h(hctx, payload)
		out <- outcome{res: res, err: err}
	}()

	select {
	case o := <-out:
		if o.err != nil {
			return nil, o.err
		}
		if o.res == nil {
			return nil, errors.New("handler returned no result")
		}
		res := *o.res
		if res.ContentType == "" {
			res.ContentType = "application/octet-stream"
		}
		if res.Filename == "" {
			res.Filename = "result.bin"
		}
		return &res, nil
	case <-hctx.Done():
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("handler timed out after %s", p.timeout)
		}
		return nil, fmt.Errorf("execution interrupted: %w", hctx.Err())
	}
}

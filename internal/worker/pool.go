package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"artifact-job-service/internal/queue"
)

type Pool struct {
	queue     queue.Queue
	processor *Processor
	workers   int
	claimWait time.Duration
	log       zerolog.Logger
}

func NewPool(q queue.Queue, processor *Processor, workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:     q,
		processor: processor,
		workers:   workers,
		claimWait: 5 * time.Second,
		log:       log,
	}
}

// Run claims messages and fans them out to the worker goroutines. One slot
// per concurrent handler invocation, so a slow job never blocks the others.
// Blocks until ctx is cancelled and all in-flight jobs have finished.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("worker pool started")

	msgCh := make(chan queue.Message)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for msg := range msgCh {
				if ack := p.processor.Process(ctx, msg); !ack {
					// Left unacked on purpose: the reaper redelivers it once
					// the claim goes stale.
					p.log.Warn().Int("worker", n).Str("job_id", msg.JobID).Msg("message left for redelivery")
					continue
				}
				if err := p.queue.Ack(ctx, msg); err != nil {
					p.log.Error().Int("worker", n).Str("job_id", msg.JobID).Err(err).Msg("ack failed")
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(msgCh)
			wg.Wait()
			p.log.Info().Msg("worker pool stopped")
			return
		default:
			msg, err := p.queue.ClaimBlocking(ctx, p.claimWait)
			if err != nil {
				if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
					p.log.Error().Err(err).Msg("claim failed")
				}
				continue
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				close(msgCh)
				wg.Wait()
				return
			}
		}
	}
}

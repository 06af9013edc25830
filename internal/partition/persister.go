package partition

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/retrypolicy"
)

// flushJob is one pending no_wait flush request, queued to preserve
// per-partition ordering.
type flushJob struct {
	sys *config.SystemConfig
}

// Persister drives the background no_wait flush queue for one partition:
// jobs are processed strictly in order, retried with bounded backoff on
// failure, and a durability failure is recorded (logged) if the retry
// budget is exhausted without the job ever recorded as lost — the message
// stays in the accumulator for the next successful flush attempt.
type Persister struct {
	partition *Partition
	policy    *retrypolicy.Policy
	logger    *zap.Logger

	mu     sync.Mutex
	queue  chan flushJob
	stop   chan struct{}
	closed bool
}

// NewPersister starts a persister goroutine for p with the given queue
// depth and retry policy.
func NewPersister(p *Partition, policy *retrypolicy.Policy, logger *zap.Logger, queueDepth int) *Persister {
	pr := &Persister{
		partition: p,
		policy:    policy,
		logger:    logger,
		queue:     make(chan flushJob, queueDepth),
		stop:      make(chan struct{}),
	}
	go pr.run()
	return pr
}

// Enqueue schedules an asynchronous flush. Non-blocking up to the queue
// depth; a full queue means the periodic flusher will eventually catch up
// since the accumulator keeps growing until messages_required_to_save is
// hit on the next Append anyway.
func (pr *Persister) Enqueue(sys *config.SystemConfig) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	select {
	case pr.queue <- flushJob{sys: sys}:
	default:
	}
}

func (pr *Persister) run() {
	for {
		select {
		case job := <-pr.queue:
			pr.process(job)
		case <-pr.stop:
			return
		}
	}
}

func (pr *Persister) process(job flushJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := pr.policy.Execute(ctx, func() error {
		_, err := pr.partition.Flush(job.sys)
		return err
	})
	if err != nil {
		pr.logger.Error("durability failure: no_wait flush exhausted retry budget",
			zap.Uint32("stream_id", pr.partition.Keys.StreamID),
			zap.Uint32("topic_id", pr.partition.Keys.TopicID),
			zap.Uint32("partition_id", pr.partition.Keys.PartitionID),
			zap.Error(err))
	}
}

// Stop halts the persister goroutine. Queued jobs are abandoned; callers
// should flush synchronously during shutdown if durability is required.
func (pr *Persister) Stop() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	pr.closed = true
	close(pr.stop)
}

package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-onetouch/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// RetryPolicy bounds reconcile retries and their backoff.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     12,
		BaseDelay:       15 * time.Second,
		MaxDelay:        15 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// Backoff doubles BaseDelay per attempt and caps it at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether attempt has used up the retry budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// NormalizeNack clamps the delay and converts requeues past the retry budget
// into dead letters when the policy asks for it.
func (p RetryPolicy) NormalizeNack(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.Exhausted(attempt) {
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || p.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// toNackOptions maps the requeue/dead-letter pair onto a go-job disposition.
// A nack asking for neither is a plain failure.
func toNackOptions(opts core.JobNackOptions) queue.NackOptions {
	disposition := queue.NackDispositionFailed
	switch {
	case opts.DeadLetter:
		disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		disposition = queue.NackDispositionRetry
	}
	return queue.NackOptions{
		Disposition: disposition,
		Delay:       opts.Delay,
		Reason:      opts.Reason,
	}
}

// QueueEnqueuer publishes core job messages on a go-job queue. Queues that
// support scheduling receive reconciles with a future not_before as delayed
// messages; other queues get them right away and the runner defers them.
type QueueEnqueuer struct {
	enqueuer queue.Enqueuer
	clock    core.Clock
}

func NewQueueEnqueuer(enqueuer queue.Enqueuer) *QueueEnqueuer {
	return &QueueEnqueuer{enqueuer: enqueuer, clock: core.SystemClock{}}
}

func (a *QueueEnqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: execution message with job id is required")
	}
	out := ToExecutionMessage(msg)
	if scheduled, ok := a.enqueuer.(queue.ScheduledEnqueuer); ok {
		if at, found := timeParam(msg.Parameters, paramNotBefore); found && at.After(a.now()) {
			_, err := scheduled.EnqueueAt(ctx, out, at)
			return err
		}
	}
	_, err := a.enqueuer.Enqueue(ctx, out)
	return err
}

func (a *QueueEnqueuer) now() time.Time {
	if a.clock == nil {
		return time.Now()
	}
	return a.clock.Now()
}

type queueDelivery struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func (d *queueDelivery) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *queueDelivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *queueDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	attempt := 0
	if msg := d.Message(); msg != nil {
		attempt = intParam(msg.Parameters, paramAttempt)
	}
	return d.delivery.Nack(ctx, toNackOptions(d.policy.NormalizeNack(opts, attempt)))
}

// QueueDequeuer reads go-job deliveries as core job deliveries.
type QueueDequeuer struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewQueueDequeuer(dequeuer queue.Dequeuer, policy RetryPolicy) *QueueDequeuer {
	return &QueueDequeuer{dequeuer: dequeuer, policy: policy}
}

func (a *QueueDequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, nil
	}
	return &queueDelivery{delivery: delivery, policy: a.policy}, nil
}

func copyParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*QueueEnqueuer)(nil)
	_ core.JobDelivery = (*queueDelivery)(nil)
	_ core.JobDequeuer = (*QueueDequeuer)(nil)
)

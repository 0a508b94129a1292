package gojob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-onetouch/core"
)

const JobIDReconcile = "onetouch.payment.reconcile"

const (
	paramPaymentID = "payment_id"
	paramFlow      = "flow"
	paramReason    = "reason"
	paramNotBefore = "not_before"
	paramAttempt   = "attempt"
)

// ReconcileScheduler turns reconcile requests into queued jobs. One job per
// payment and attempt is accepted by queues that honor idempotency keys.
type ReconcileScheduler struct {
	enqueuer core.JobEnqueuer
}

func NewReconcileScheduler(enqueuer core.JobEnqueuer) *ReconcileScheduler {
	return &ReconcileScheduler{enqueuer: enqueuer}
}

func (s *ReconcileScheduler) ScheduleReconcile(ctx context.Context, req core.ReconcileRequest) error {
	return s.schedule(ctx, req, 0)
}

func (s *ReconcileScheduler) schedule(ctx context.Context, req core.ReconcileRequest, attempt int) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: reconcile enqueuer is not configured")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return &core.InvalidInputError{Field: "payment_id", Reason: "is required"}
	}
	params := map[string]any{
		paramPaymentID: paymentID,
		paramFlow:      string(req.Flow),
		paramReason:    strings.TrimSpace(req.Reason),
		paramAttempt:   attempt,
	}
	if !req.NotBefore.IsZero() {
		params[paramNotBefore] = req.NotBefore.UTC().Format(time.RFC3339Nano)
	}
	return s.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          JobIDReconcile,
		ScriptPath:     JobIDReconcile,
		Parameters:     params,
		IdempotencyKey: JobIDReconcile + ":" + paymentID + ":" + strconv.Itoa(attempt),
		DedupPolicy:    "drop",
	})
}

type StatusChecker interface {
	CheckStatus(ctx context.Context, paymentID string) (core.PaymentState, error)
}

type ReconcileOutcome string

const (
	ReconcileIdle        ReconcileOutcome = "idle"
	ReconcileSettled     ReconcileOutcome = "settled"
	ReconcileRescheduled ReconcileOutcome = "rescheduled"
	ReconcileDeferred    ReconcileOutcome = "deferred"
	ReconcileAbandoned   ReconcileOutcome = "abandoned"
)

// ReconcileRunner drains reconcile jobs: each delivery polls the payment
// status once. Non-terminal or retryable outcomes schedule the next attempt
// with backoff; exhausted or permanent failures are dead-lettered.
type ReconcileRunner struct {
	dequeuer  core.JobDequeuer
	checker   StatusChecker
	scheduler *ReconcileScheduler
	policy    RetryPolicy
	clock     core.Clock
	logger    core.Logger
}

type RunnerOption func(*ReconcileRunner)

func WithRunnerClock(clock core.Clock) RunnerOption {
	return func(r *ReconcileRunner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithRunnerLogger(logger core.Logger) RunnerOption {
	return func(r *ReconcileRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewReconcileRunner(
	dequeuer core.JobDequeuer,
	checker StatusChecker,
	scheduler *ReconcileScheduler,
	policy RetryPolicy,
	opts ...RunnerOption,
) *ReconcileRunner {
	runner := &ReconcileRunner{
		dequeuer:  dequeuer,
		checker:   checker,
		scheduler: scheduler,
		policy:    policy,
		clock:     core.SystemClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner
}

// RunOnce handles at most one delivery.
func (r *ReconcileRunner) RunOnce(ctx context.Context) (ReconcileOutcome, error) {
	if r == nil || r.dequeuer == nil || r.checker == nil || r.scheduler == nil {
		return ReconcileIdle, fmt.Errorf("gojob: reconcile runner is not configured")
	}
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return ReconcileIdle, err
	}
	if delivery == nil {
		return ReconcileIdle, nil
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDReconcile {
		return ReconcileAbandoned, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "unsupported job"})
	}

	paymentID := stringParam(msg.Parameters, paramPaymentID)
	attempt := intParam(msg.Parameters, paramAttempt)
	if paymentID == "" {
		return ReconcileAbandoned, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "missing payment id"})
	}

	now := r.clock.Now()
	if notBefore, ok := timeParam(msg.Parameters, paramNotBefore); ok && now.Before(notBefore) {
		return ReconcileDeferred, delivery.Nack(ctx, core.JobNackOptions{
			Delay:   notBefore.Sub(now),
			Requeue: true,
			Reason:  "not due",
		})
	}

	state, checkErr := r.checker.CheckStatus(ctx, paymentID)
	switch {
	case checkErr == nil && state.Terminal():
		r.log(ctx, "onetouch reconcile settled", paymentID, attempt, string(state), nil)
		return ReconcileSettled, delivery.Ack(ctx)
	case checkErr != nil && !retryableReconcileError(checkErr):
		r.log(ctx, "onetouch reconcile abandoned", paymentID, attempt, string(state), checkErr)
		return ReconcileAbandoned, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: checkErr.Error()})
	}

	next := attempt + 1
	if r.policy.Exhausted(next) {
		r.log(ctx, "onetouch reconcile retry budget exhausted", paymentID, attempt, string(state), checkErr)
		return ReconcileAbandoned, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "retry budget exhausted"})
	}
	if err := r.scheduler.schedule(ctx, core.ReconcileRequest{
		PaymentID: paymentID,
		Flow:      core.Flow(stringParam(msg.Parameters, paramFlow)),
		Reason:    stringParam(msg.Parameters, paramReason),
		NotBefore: now.Add(r.policy.Backoff(next)),
	}, next); err != nil {
		return ReconcileIdle, delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   r.policy.Backoff(next),
			Reason:  err.Error(),
		})
	}
	return ReconcileRescheduled, delivery.Ack(ctx)
}

// retryableReconcileError treats status polling as a read-only call, so
// transport and malformed responses are retried. Provider answers, unknown
// payments and configuration problems are not.
func retryableReconcileError(err error) bool {
	if errors.Is(err, core.ErrUnknownPayment) || errors.Is(err, core.ErrPaymentNotFound) {
		return false
	}
	return core.IsRetryable(err, true) || errors.Is(err, core.ErrHTTPStatus)
}

func (r *ReconcileRunner) log(ctx context.Context, message string, paymentID string, attempt int, state string, err error) {
	if r.logger == nil {
		return
	}
	args := []any{"payment_id", paymentID, "attempt", attempt, "state", state}
	if err != nil {
		args = append(args, "error", err.Error())
		r.logger.WithContext(ctx).Warn(message, args...)
		return
	}
	r.logger.WithContext(ctx).Info(message, args...)
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// intParam accepts the numeric shapes a queue backend may hand back after
// JSON round trips.
func intParam(params map[string]any, key string) int {
	switch typed := params[key].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	}
	return 0
}

func timeParam(params map[string]any, key string) (time.Time, bool) {
	raw := stringParam(params, key)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

var _ core.ReconcileScheduler = (*ReconcileScheduler)(nil)

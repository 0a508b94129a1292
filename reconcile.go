package onetouch

import (
	"fmt"

	"github.com/goliatone/go-onetouch/adapters/gojob"
	"github.com/goliatone/go-onetouch/adapters/gologger"
	"github.com/goliatone/go-onetouch/core"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

type ReconcileQueue struct {
	Enqueuer core.JobEnqueuer
	Dequeuer core.JobDequeuer
	Policy   gojob.RetryPolicy
	// LoggerProvider feeds both the runner and JobLogger. Nil uses a nop logger.
	LoggerProvider glog.LoggerProvider
}

// Reconciler drains reconcile jobs for a Service. JobLogger is handed to
// go-job workers that host RunOnce.
type Reconciler struct {
	Service   *Service
	Scheduler *gojob.ReconcileScheduler
	Runner    *gojob.ReconcileRunner
	JobLogger job.Logger
}

// NewReconcilingService wires a queue-backed ReconcileScheduler into the
// service and returns the runner that polls status for scheduled payments.
func NewReconcilingService(cfg Config, queue ReconcileQueue, opts ...Option) (*Reconciler, error) {
	if queue.Enqueuer == nil || queue.Dequeuer == nil {
		return nil, fmt.Errorf("onetouch: reconcile queue requires enqueuer and dequeuer")
	}
	policy := queue.Policy
	if policy == (gojob.RetryPolicy{}) {
		policy = gojob.DefaultRetryPolicy()
	}
	scheduler := gojob.NewReconcileScheduler(queue.Enqueuer)

	all := make([]Option, 0, len(opts)+1)
	all = append(all, opts...)
	all = append(all, core.WithReconcileScheduler(scheduler))
	service, err := NewService(cfg, all...)
	if err != nil {
		return nil, err
	}

	logger, _, jobLogger := gologger.ResolveForJob(queue.LoggerProvider, nil)
	runner := gojob.NewReconcileRunner(queue.Dequeuer, service, scheduler, policy,
		gojob.WithRunnerClock(core.SystemClock{}),
		gojob.WithRunnerLogger(logger),
	)
	return &Reconciler{
		Service:   service,
		Scheduler: scheduler,
		Runner:    runner,
		JobLogger: jobLogger,
	}, nil
}

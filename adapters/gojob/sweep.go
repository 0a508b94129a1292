package gojob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-onetouch/core"
)

// PendingLister lists payments in a state whose last update precedes before.
type PendingLister interface {
	ListByState(ctx context.Context, state core.PaymentState, before time.Time, limit int) ([]core.Payment, error)
}

// StaleSweeper schedules reconciles for payments stuck in a non-terminal
// state after their callback or poll never arrived. DETAILS_CHECKED payments
// are only picked up once a send was attempted, since that is where a lost
// send outcome leaves them.
type StaleSweeper struct {
	Lister    PendingLister
	Scheduler core.ReconcileScheduler
	States    []core.PaymentState
	StaleAge  time.Duration
	BatchSize int
	Clock     core.Clock
	Logger    core.Logger
}

func NewStaleSweeper(lister PendingLister, scheduler core.ReconcileScheduler) *StaleSweeper {
	return &StaleSweeper{
		Lister:    lister,
		Scheduler: scheduler,
		States: []core.PaymentState{
			core.PaymentDetailsChecked,
			core.PaymentSent,
			core.PaymentProcessing,
			core.PaymentPending,
		},
		StaleAge:  10 * time.Minute,
		BatchSize: 100,
		Clock:     core.SystemClock{},
	}
}

// Sweep returns the number of reconciles scheduled. A failing schedule call
// stops the sweep so the next run can pick the remaining payments up.
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	if s == nil || s.Lister == nil || s.Scheduler == nil {
		return 0, fmt.Errorf("gojob: stale sweeper is not configured")
	}
	clock := s.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	cutoff := clock.Now().Add(-s.StaleAge)
	scheduled := 0
	for _, state := range s.States {
		payments, err := s.Lister.ListByState(ctx, state, cutoff, s.BatchSize)
		if err != nil {
			return scheduled, err
		}
		for _, payment := range payments {
			if !needsReconcile(payment) {
				continue
			}
			err := s.Scheduler.ScheduleReconcile(ctx, core.ReconcileRequest{
				PaymentID: payment.ID,
				Flow:      payment.Flow,
				Reason:    "stale " + string(payment.State),
			})
			if err != nil {
				return scheduled, err
			}
			scheduled++
		}
	}
	if s.Logger != nil && scheduled > 0 {
		s.Logger.WithContext(ctx).Info("onetouch stale sweep scheduled reconciles", "count", scheduled)
	}
	return scheduled, nil
}

func needsReconcile(payment core.Payment) bool {
	switch {
	case payment.State.Terminal():
		return false
	case payment.State == core.PaymentDetailsChecked:
		return payment.SendAttempted
	}
	return true
}

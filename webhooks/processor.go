package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-onetouch/core"
)

type CallbackHandler interface {
	HandleCallback(ctx context.Context, raw map[string]string) (core.CallbackResult, error)
}

// Releaser is implemented by replay ledgers that can forget a claim.
type Releaser interface {
	Release(ctx context.Context, key string) error
}

type DeliveryResult struct {
	DeliveryKey string
	PaymentID   string
	State       core.PaymentState
	Changed     bool
	Deduped     bool
}

type Processor struct {
	Handler   CallbackHandler
	Ledger    core.ReplayLedger
	ReplayTTL time.Duration
	Logger    core.Logger
}

func NewProcessor(handler CallbackHandler, ledger core.ReplayLedger) *Processor {
	return &Processor{
		Handler:   handler,
		Ledger:    ledger,
		ReplayTTL: 24 * time.Hour,
	}
}

func (p *Processor) Process(ctx context.Context, params map[string]string) (DeliveryResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return DeliveryResult{}, &core.ConfigurationError{Field: "webhooks", Reason: "processor requires handler and ledger"}
	}
	key, err := DeliveryKey(params)
	if err != nil {
		return DeliveryResult{}, &core.InvalidInputError{Field: core.ParamID, Reason: "is required"}
	}

	claimed, err := p.Ledger.Claim(ctx, key, p.replayTTL())
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("webhooks: claim delivery: %w", err)
	}
	if !claimed {
		p.log(ctx, "onetouch callback replay acknowledged", map[string]any{"delivery_key": key})
		return DeliveryResult{DeliveryKey: key, Deduped: true}, nil
	}

	result, err := p.Handler.HandleCallback(ctx, params)
	if err != nil {
		if releaser, ok := p.Ledger.(Releaser); ok {
			_ = releaser.Release(ctx, key)
		}
		return DeliveryResult{DeliveryKey: key}, err
	}
	return DeliveryResult{
		DeliveryKey: key,
		PaymentID:   result.PaymentID,
		State:       result.State,
		Changed:     result.Changed,
	}, nil
}

func (p *Processor) replayTTL() time.Duration {
	if p != nil && p.ReplayTTL > 0 {
		return p.ReplayTTL
	}
	return 24 * time.Hour
}

func (p *Processor) log(ctx context.Context, message string, fields map[string]any) {
	if p == nil || p.Logger == nil {
		return
	}
	p.Logger.WithContext(ctx).Debug(message, fieldArgs(fields)...)
}

func fieldArgs(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return args
}

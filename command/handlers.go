package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-onetouch/core"
)

type PaymentService interface {
	StartPayment(ctx context.Context, req core.StartPaymentRequest) (core.StartPaymentResult, error)
	CheckStatus(ctx context.Context, paymentID string) (core.PaymentState, error)
	HandleCallback(ctx context.Context, raw map[string]string) (core.CallbackResult, error)
	Refund(ctx context.Context, req core.RefundRequest) (core.RefundResult, error)
}

type StartPaymentCommand struct {
	service PaymentService
}

func NewStartPaymentCommand(service PaymentService) *StartPaymentCommand {
	return &StartPaymentCommand{service: service}
}

func (c *StartPaymentCommand) Execute(ctx context.Context, msg StartPaymentMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("command: start payment service is required")
	}
	out, err := c.service.StartPayment(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CheckStatusCommand struct {
	service PaymentService
}

func NewCheckStatusCommand(service PaymentService) *CheckStatusCommand {
	return &CheckStatusCommand{service: service}
}

func (c *CheckStatusCommand) Execute(ctx context.Context, msg CheckStatusMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("command: check status service is required")
	}
	state, err := c.service.CheckStatus(ctx, msg.PaymentID)
	if err != nil {
		return err
	}
	storeResult(ctx, state)
	return nil
}

type HandleCallbackCommand struct {
	service PaymentService
}

func NewHandleCallbackCommand(service PaymentService) *HandleCallbackCommand {
	return &HandleCallbackCommand{service: service}
}

func (c *HandleCallbackCommand) Execute(ctx context.Context, msg HandleCallbackMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("command: callback service is required")
	}
	out, err := c.service.HandleCallback(ctx, msg.Params)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefundCommand struct {
	service PaymentService
}

func NewRefundCommand(service PaymentService) *RefundCommand {
	return &RefundCommand{service: service}
}

func (c *RefundCommand) Execute(ctx context.Context, msg RefundMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("command: refund service is required")
	}
	out, err := c.service.Refund(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

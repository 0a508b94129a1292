package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-onetouch/core"
	"github.com/shopspring/decimal"
)

type stubPaymentService struct {
	startFn    func(ctx context.Context, req core.StartPaymentRequest) (core.StartPaymentResult, error)
	checkFn    func(ctx context.Context, paymentID string) (core.PaymentState, error)
	callbackFn func(ctx context.Context, raw map[string]string) (core.CallbackResult, error)
	refundFn   func(ctx context.Context, req core.RefundRequest) (core.RefundResult, error)
}

func (s stubPaymentService) StartPayment(ctx context.Context, req core.StartPaymentRequest) (core.StartPaymentResult, error) {
	return s.startFn(ctx, req)
}

func (s stubPaymentService) CheckStatus(ctx context.Context, paymentID string) (core.PaymentState, error) {
	return s.checkFn(ctx, paymentID)
}

func (s stubPaymentService) HandleCallback(ctx context.Context, raw map[string]string) (core.CallbackResult, error) {
	return s.callbackFn(ctx, raw)
}

func (s stubPaymentService) Refund(ctx context.Context, req core.RefundRequest) (core.RefundResult, error) {
	return s.refundFn(ctx, req)
}

func TestStartPaymentCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.StartPaymentResult{PaymentID: "PAY-1", RedirectURL: "https://example.com/pay", State: core.PaymentRedirectIssued}
	svc := stubPaymentService{
		startFn: func(_ context.Context, req core.StartPaymentRequest) (core.StartPaymentResult, error) {
			if req.PaymentID != "PAY-1" {
				t.Fatalf("expected payment PAY-1, got %q", req.PaymentID)
			}
			return expected, nil
		},
	}

	collector := gocmd.NewResult[core.StartPaymentResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewStartPaymentCommand(svc).Execute(ctx, StartPaymentMessage{Request: core.StartPaymentRequest{
		Flow:      core.FlowNoReg,
		PaymentID: "PAY-1",
		Amount:    decimal.RequireFromString("12.50"),
	}})
	if err != nil {
		t.Fatalf("execute start payment: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result != expected {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestPaymentCommands_DelegateToService(t *testing.T) {
	t.Run("check status", func(t *testing.T) {
		svc := stubPaymentService{
			checkFn: func(_ context.Context, paymentID string) (core.PaymentState, error) {
				if paymentID != "PAY-2" {
					t.Fatalf("unexpected payment id %q", paymentID)
				}
				return core.PaymentComplete, nil
			},
		}
		collector := gocmd.NewResult[core.PaymentState]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewCheckStatusCommand(svc).Execute(ctx, CheckStatusMessage{PaymentID: "PAY-2"}); err != nil {
			t.Fatalf("execute check status: %v", err)
		}
		if state, _ := collector.Load(); state != core.PaymentComplete {
			t.Fatalf("expected COMPLETE, got %q", state)
		}
	})

	t.Run("handle callback", func(t *testing.T) {
		svc := stubPaymentService{
			callbackFn: func(_ context.Context, raw map[string]string) (core.CallbackResult, error) {
				if raw["id"] != "PAY-3" {
					t.Fatalf("unexpected callback params %#v", raw)
				}
				return core.CallbackResult{PaymentID: "PAY-3", State: core.PaymentProcessing, Changed: true}, nil
			},
		}
		collector := gocmd.NewResult[core.CallbackResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewHandleCallbackCommand(svc).Execute(ctx, HandleCallbackMessage{Params: map[string]string{"id": "PAY-3"}}); err != nil {
			t.Fatalf("execute callback: %v", err)
		}
		if result, _ := collector.Load(); !result.Changed {
			t.Fatalf("expected changed callback result")
		}
	})

	t.Run("refund propagates errors", func(t *testing.T) {
		svc := stubPaymentService{
			refundFn: func(_ context.Context, _ core.RefundRequest) (core.RefundResult, error) {
				return core.RefundResult{}, &core.RefundError{PaymentID: "PAY-4", Message: "declined"}
			},
		}
		err := NewRefundCommand(svc).Execute(context.Background(), RefundMessage{Request: core.RefundRequest{
			PaymentID: "PAY-4",
			Amount:    decimal.NewFromInt(1),
			Reason:    "return",
		}})
		if !errors.Is(err, core.ErrRefund) {
			t.Fatalf("expected refund error, got %v", err)
		}
	})
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := []struct {
		name string
		msg  interface{ Validate() error }
	}{
		{name: "start without flow", msg: StartPaymentMessage{}},
		{name: "token flow without session", msg: StartPaymentMessage{Request: core.StartPaymentRequest{Flow: core.FlowToken, Amount: decimal.NewFromInt(1)}}},
		{name: "noreg without amount", msg: StartPaymentMessage{Request: core.StartPaymentRequest{Flow: core.FlowNoReg, PaymentID: "PAY-1"}}},
		{name: "check status", msg: CheckStatusMessage{}},
		{name: "callback", msg: HandleCallbackMessage{}},
		{name: "refund without reason", msg: RefundMessage{Request: core.RefundRequest{PaymentID: "PAY-1", Amount: decimal.NewFromInt(1)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != goerrors.CategoryValidation {
				t.Fatalf("expected validation category, got %q", rich.Category)
			}
			if rich.TextCode != core.ErrorTextInvalidInput {
				t.Fatalf("expected %q text code, got %q", core.ErrorTextInvalidInput, rich.TextCode)
			}
		})
	}
}

func TestStartPaymentCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *StartPaymentCommand
	err := cmd.Execute(context.Background(), StartPaymentMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

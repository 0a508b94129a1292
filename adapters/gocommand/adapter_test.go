package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	onetouchcommand "github.com/goliatone/go-onetouch/command"
	"github.com/goliatone/go-onetouch/core"
	onetouchquery "github.com/goliatone/go-onetouch/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "onetouch.test.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "onetouch.test.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type foreignMessage struct{}

func (foreignMessage) Type() string { return "billing.command.charge" }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "onetouch.test.dispatch" }

type queueMessage struct{}

func (queueMessage) Type() string { return "onetouch.test.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(foreignMessage{}); err == nil {
		t.Fatalf("expected message outside the namespace to fail")
	}
	if err := ValidateMessageContract(onetouchcommand.CheckStatusMessage{PaymentID: "PAY-1"}); err != nil {
		t.Fatalf("expected payment command to satisfy the contract, got %v", err)
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("onetouch.test.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestRegisterPaymentHandlersDispatchesToService(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	service := &stubPaymentService{
		state:   core.PaymentComplete,
		payment: core.Payment{ID: "PAY-1", State: core.PaymentComplete},
	}

	subscriptions, err := RegisterPaymentHandlers(adapter, service)
	if err != nil {
		t.Fatalf("register payment handlers: %v", err)
	}
	t.Cleanup(func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	})
	if len(subscriptions) != 6 {
		t.Fatalf("expected 6 subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	if err := Dispatch(ctx, onetouchcommand.CheckStatusMessage{PaymentID: "PAY-1"}); err != nil {
		t.Fatalf("dispatch check status: %v", err)
	}
	if service.checked != "PAY-1" {
		t.Fatalf("expected status check for PAY-1, got %q", service.checked)
	}

	payment, err := Query[onetouchquery.GetPaymentMessage, core.Payment](ctx, onetouchquery.GetPaymentMessage{PaymentID: "PAY-1"})
	if err != nil {
		t.Fatalf("query payment: %v", err)
	}
	if payment.ID != "PAY-1" || payment.State != core.PaymentComplete {
		t.Fatalf("expected stored payment, got %+v", payment)
	}
}

func TestRegisterPaymentHandlersRequiresService(t *testing.T) {
	if _, err := RegisterPaymentHandlers(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected missing service to fail")
	}
	if _, err := RegisterPaymentHandlers(nil, &stubPaymentService{}); err == nil {
		t.Fatalf("expected missing registry to fail")
	}
}

type stubPaymentService struct {
	state   core.PaymentState
	payment core.Payment
	checked string
}

func (s *stubPaymentService) StartPayment(context.Context, core.StartPaymentRequest) (core.StartPaymentResult, error) {
	return core.StartPaymentResult{}, nil
}

func (s *stubPaymentService) CheckStatus(_ context.Context, paymentID string) (core.PaymentState, error) {
	s.checked = paymentID
	return s.state, nil
}

func (s *stubPaymentService) HandleCallback(context.Context, map[string]string) (core.CallbackResult, error) {
	return core.CallbackResult{}, nil
}

func (s *stubPaymentService) Refund(context.Context, core.RefundRequest) (core.RefundResult, error) {
	return core.RefundResult{}, nil
}

func (s *stubPaymentService) GetPayment(context.Context, string) (core.Payment, error) {
	return s.payment, nil
}

func (s *stubPaymentService) SavedCards(context.Context, string) ([]core.SavedCard, error) {
	return nil, nil
}

package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	onetouchcommand "github.com/goliatone/go-onetouch/command"
	"github.com/goliatone/go-onetouch/core"
	onetouchquery "github.com/goliatone/go-onetouch/query"
)

// PaymentHandlerService is the service surface the payment commands and
// queries dispatch to.
type PaymentHandlerService interface {
	onetouchcommand.PaymentService
	onetouchquery.PaymentReader
	onetouchquery.SavedCardReader
}

// RegisterPaymentHandlers registers and subscribes every payment command and
// query. On failure the subscriptions made so far are released.
func RegisterPaymentHandlers(
	adapter *RegistryAdapter,
	service PaymentHandlerService,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: payment service is required")
	}
	subscriptions := make([]commanddispatcher.Subscription, 0, 6)
	register := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			for _, existing := range subscriptions {
				existing.Unsubscribe()
			}
			subscriptions = nil
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := register(RegisterAndSubscribe[onetouchcommand.StartPaymentMessage](adapter, onetouchcommand.NewStartPaymentCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[onetouchcommand.CheckStatusMessage](adapter, onetouchcommand.NewCheckStatusCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[onetouchcommand.HandleCallbackMessage](adapter, onetouchcommand.NewHandleCallbackCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[onetouchcommand.RefundMessage](adapter, onetouchcommand.NewRefundCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery[onetouchquery.GetPaymentMessage, core.Payment](adapter, onetouchquery.NewGetPaymentQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery[onetouchquery.ListSavedCardsMessage, []core.SavedCard](adapter, onetouchquery.NewListSavedCardsQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

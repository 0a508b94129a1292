package onetouch

import (
	"fmt"
	"time"

	onetouchcommand "github.com/goliatone/go-onetouch/command"
	"github.com/goliatone/go-onetouch/core"
	onetouchquery "github.com/goliatone/go-onetouch/query"
	"github.com/goliatone/go-onetouch/webhooks"
)

type CommandQueryService interface {
	onetouchcommand.PaymentService
	onetouchquery.PaymentReader
	onetouchquery.SavedCardReader
}

type Commands struct {
	StartPayment   *onetouchcommand.StartPaymentCommand
	CheckStatus    *onetouchcommand.CheckStatusCommand
	HandleCallback *onetouchcommand.HandleCallbackCommand
	Refund         *onetouchcommand.RefundCommand
}

type Queries struct {
	GetPayment     *onetouchquery.GetPaymentQuery
	ListSavedCards *onetouchquery.ListSavedCardsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
	webhook  *webhooks.Handler
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	ledger    core.ReplayLedger
	replayTTL time.Duration
	logger    core.Logger
}

// WithReplayLedger sets the ledger used to drop duplicate callback
// deliveries. The default is an in-memory ledger.
func WithReplayLedger(ledger core.ReplayLedger) FacadeOption {
	return func(options *facadeOptions) {
		options.ledger = ledger
	}
}

func WithReplayTTL(ttl time.Duration) FacadeOption {
	return func(options *facadeOptions) {
		options.replayTTL = ttl
	}
}

func WithCallbackLogger(logger core.Logger) FacadeOption {
	return func(options *facadeOptions) {
		options.logger = logger
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("onetouch: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.ledger == nil {
		cfg.ledger = core.NewMemoryReplayLedger(24 * time.Hour)
	}
	if cfg.logger == nil {
		if source, ok := service.(interface{ Logger() core.Logger }); ok {
			cfg.logger = source.Logger()
		}
	}

	processor := webhooks.NewProcessor(service, cfg.ledger)
	if cfg.replayTTL > 0 {
		processor.ReplayTTL = cfg.replayTTL
	}
	processor.Logger = cfg.logger

	return &Facade{
		service: service,
		commands: Commands{
			StartPayment:   onetouchcommand.NewStartPaymentCommand(service),
			CheckStatus:    onetouchcommand.NewCheckStatusCommand(service),
			HandleCallback: onetouchcommand.NewHandleCallbackCommand(service),
			Refund:         onetouchcommand.NewRefundCommand(service),
		},
		queries: Queries{
			GetPayment:     onetouchquery.NewGetPaymentQuery(service),
			ListSavedCards: onetouchquery.NewListSavedCardsQuery(service),
		},
		webhook: webhooks.NewHandler(processor),
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

// CallbackHandler serves the provider's callback URL.
func (f *Facade) CallbackHandler() *webhooks.Handler {
	if f == nil {
		return nil
	}
	return f.webhook
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-onetouch/core"
)

var (
	_ gocmd.Commander[StartPaymentMessage]   = (*StartPaymentCommand)(nil)
	_ gocmd.Commander[CheckStatusMessage]    = (*CheckStatusCommand)(nil)
	_ gocmd.Commander[HandleCallbackMessage] = (*HandleCallbackCommand)(nil)
	_ gocmd.Commander[RefundMessage]         = (*RefundCommand)(nil)

	_ PaymentService = (*core.Service)(nil)
)

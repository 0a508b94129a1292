package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-onetouch/core"
)

var (
	_ gocmd.Querier[GetPaymentMessage, core.Payment]         = (*GetPaymentQuery)(nil)
	_ gocmd.Querier[ListSavedCardsMessage, []core.SavedCard] = (*ListSavedCardsQuery)(nil)
	_ PaymentReader                                          = (*core.Service)(nil)
	_ SavedCardReader                                        = (*core.Service)(nil)
)

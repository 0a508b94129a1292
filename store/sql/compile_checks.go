package sqlstore

import "github.com/goliatone/go-onetouch/core"

var (
	_ core.PaymentStore   = (*PaymentStore)(nil)
	_ core.PaymentStore   = (*CachedPaymentStore)(nil)
	_ core.SavedCardStore = (*SavedCardStore)(nil)
)

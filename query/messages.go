package query

import "strings"

const (
	TypeGetPayment     = "onetouch.query.payment.get"
	TypeListSavedCards = "onetouch.query.saved_cards.list"
)

type GetPaymentMessage struct {
	PaymentID string
}

func (GetPaymentMessage) Type() string { return TypeGetPayment }

func (m GetPaymentMessage) Validate() error {
	if strings.TrimSpace(m.PaymentID) == "" {
		return invalidMessage(m.Type(), "payment_id", "is required")
	}
	return nil
}

type ListSavedCardsMessage struct {
	DeviceID string
}

func (ListSavedCardsMessage) Type() string { return TypeListSavedCards }

func (m ListSavedCardsMessage) Validate() error {
	if strings.TrimSpace(m.DeviceID) == "" {
		return invalidMessage(m.Type(), "device_id", "is required")
	}
	return nil
}

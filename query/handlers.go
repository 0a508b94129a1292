package query

import (
	"context"

	"github.com/goliatone/go-onetouch/core"
)

type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID string) (core.Payment, error)
}

type SavedCardReader interface {
	SavedCards(ctx context.Context, deviceID string) ([]core.SavedCard, error)
}

type GetPaymentQuery struct {
	reader PaymentReader
}

func NewGetPaymentQuery(reader PaymentReader) *GetPaymentQuery {
	return &GetPaymentQuery{reader: reader}
}

func (q *GetPaymentQuery) Query(ctx context.Context, msg GetPaymentMessage) (core.Payment, error) {
	if q == nil || q.reader == nil {
		return core.Payment{}, missingDependency("query: payment reader is required")
	}
	return q.reader.GetPayment(ctx, msg.PaymentID)
}

// ListSavedCardsQuery returns the reusable cards stored for one device. The
// sealed token value is never part of the query result.
type ListSavedCardsQuery struct {
	reader SavedCardReader
}

func NewListSavedCardsQuery(reader SavedCardReader) *ListSavedCardsQuery {
	return &ListSavedCardsQuery{reader: reader}
}

func (q *ListSavedCardsQuery) Query(ctx context.Context, msg ListSavedCardsMessage) ([]core.SavedCard, error) {
	if q == nil || q.reader == nil {
		return nil, missingDependency("query: saved card reader is required")
	}
	cards, err := q.reader.SavedCards(ctx, msg.DeviceID)
	if err != nil {
		return nil, err
	}
	out := make([]core.SavedCard, 0, len(cards))
	for _, card := range cards {
		card.Token = core.Token{KIN: card.Token.KIN, ExpiresAt: card.Token.ExpiresAt}
		out = append(out, card)
	}
	return out, nil
}

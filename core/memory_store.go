package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryPaymentStore keeps payments in process memory with optimistic
// versioning. It is the default store when no persistence is configured.
type MemoryPaymentStore struct {
	mu       sync.RWMutex
	payments map[string]Payment
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{payments: map[string]Payment{}}
}

func (s *MemoryPaymentStore) Create(_ context.Context, payment Payment) (Payment, error) {
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return Payment{}, &InvalidInputError{Field: "payment_id", Reason: "is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[id]; exists {
		return Payment{}, ErrDuplicatePayment
	}
	payment.ID = id
	payment.Version = 1
	s.payments[id] = ClonePayment(payment)
	return ClonePayment(payment), nil
}

func (s *MemoryPaymentStore) Get(_ context.Context, id string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payment, ok := s.payments[strings.TrimSpace(id)]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return ClonePayment(payment), nil
}

func (s *MemoryPaymentStore) Update(_ context.Context, payment Payment) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.payments[payment.ID]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	if stored.Version != payment.Version {
		return Payment{}, ErrVersionConflict
	}
	payment.Version = stored.Version + 1
	payment.CreatedAt = stored.CreatedAt
	s.payments[payment.ID] = ClonePayment(payment)
	return ClonePayment(payment), nil
}

type MemorySavedCardStore struct {
	mu    sync.RWMutex
	cards map[string]SavedCard
}

func NewMemorySavedCardStore() *MemorySavedCardStore {
	return &MemorySavedCardStore{cards: map[string]SavedCard{}}
}

// Save stores one card per payment; saving again replaces it.
func (s *MemorySavedCardStore) Save(_ context.Context, card SavedCard) error {
	if strings.TrimSpace(card.PaymentID) == "" {
		return &InvalidInputError{Field: "payment_id", Reason: "is required"}
	}
	if card.Token.IsZero() {
		return &InvalidInputError{Field: "token", Reason: "is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.PaymentID] = card
	return nil
}

func (s *MemorySavedCardStore) GetByPayment(_ context.Context, paymentID string) (SavedCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[strings.TrimSpace(paymentID)]
	if !ok {
		return SavedCard{}, ErrPaymentNotFound
	}
	return card, nil
}

func (s *MemorySavedCardStore) ListByDevice(_ context.Context, deviceID string) ([]SavedCard, error) {
	deviceID = strings.TrimSpace(deviceID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SavedCard, 0)
	for _, card := range s.cards {
		if card.DeviceID == deviceID {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ClonePayment returns a copy that shares no slices or pointers with in.
func ClonePayment(in Payment) Payment {
	out := in
	if in.Visibility != nil {
		out.Visibility = append([]Visibility(nil), in.Visibility...)
	}
	if in.Refunds != nil {
		out.Refunds = append([]RefundEntry(nil), in.Refunds...)
	}
	if in.Token != nil {
		token := *in.Token
		out.Token = &token
	}
	return out
}

package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryPaymentStore_OptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPaymentStore()
	created, err := store.Create(ctx, Payment{ID: "PAY-1", Flow: FlowToken, State: PaymentInitialized, CreatedAt: testNow()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}
	if _, err := store.Create(ctx, Payment{ID: "PAY-1"}); !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("expected duplicate payment, got %v", err)
	}

	first := created
	first.State = PaymentDetailsChecked
	first.CreatedAt = time.Time{}
	updated, err := store.Update(ctx, first)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || !updated.CreatedAt.Equal(testNow()) {
		t.Fatalf("expected version bump with preserved created_at, got %+v", updated)
	}

	stale := created
	stale.State = PaymentFailed
	if _, err := store.Update(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryPaymentStore_ReturnsIsolatedCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPaymentStore()
	token := Token{Value: "tok-abc"}
	if _, err := store.Create(ctx, Payment{ID: "PAY-2", Token: &token, Visibility: []Visibility{VisibilityKIN}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	token.Value = "mutated"

	loaded, _ := store.Get(ctx, "PAY-2")
	loaded.Visibility[0] = VisibilityEmail
	loaded.Token.Value = "also-mutated"

	again, _ := store.Get(ctx, "PAY-2")
	if again.Token.Value != "tok-abc" || again.Visibility[0] != VisibilityKIN {
		t.Fatalf("expected stored payment to be isolated, got %+v", again)
	}
}

func TestMemorySavedCardStore_ListByDevice(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySavedCardStore()
	base := testNow()
	cards := []SavedCard{
		{PaymentID: "ORD-2", DeviceID: "dev-1", Token: Token{Value: "t2"}, CreatedAt: base.Add(time.Minute)},
		{PaymentID: "ORD-1", DeviceID: "dev-1", Token: Token{Value: "t1"}, CreatedAt: base},
		{PaymentID: "ORD-3", DeviceID: "dev-2", Token: Token{Value: "t3"}, CreatedAt: base},
	}
	for _, card := range cards {
		if err := store.Save(ctx, card); err != nil {
			t.Fatalf("save %s: %v", card.PaymentID, err)
		}
	}
	if err := store.Save(ctx, SavedCard{PaymentID: "ORD-4"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}

	listed, err := store.ListByDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].PaymentID != "ORD-1" || listed[1].PaymentID != "ORD-2" {
		t.Fatalf("expected two cards ordered by creation, got %+v", listed)
	}
}

package sqlstore_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-onetouch/core"
	"github.com/goliatone/go-onetouch/security"
	sqlstore "github.com/goliatone/go-onetouch/store/sql"
)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()

	var tableName string
	if err := factory.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"onetouch_payments",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "onetouch_payments" {
		t.Fatalf("expected onetouch_payments table, got %q", tableName)
	}
}

func TestPaymentStore_CreateGetUpdateWithVersionCheck(t *testing.T) {
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.PaymentStore()

	created, err := store.Create(ctx, samplePayment("PAY-1001"))
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}
	if created.Token == nil || created.Token.Value != "tok-secret" {
		t.Fatalf("expected token to round trip, got %+v", created.Token)
	}
	if len(created.Visibility) != 2 || created.Visibility[1] != core.VisibilityKIN {
		t.Fatalf("expected visibility to round trip, got %+v", created.Visibility)
	}

	if _, err := store.Create(ctx, samplePayment("PAY-1001")); !errors.Is(err, core.ErrDuplicatePayment) {
		t.Fatalf("expected duplicate payment error, got %v", err)
	}

	next := created
	next.State = core.PaymentComplete
	next.TransactionNo = "TX-77"
	next.Refunds = []core.RefundEntry{{AmountMinor: 500, Reason: "partial", RefundNo: "R-1", CreatedAt: time.Now().UTC()}}
	updated, err := store.Update(ctx, next)
	if err != nil {
		t.Fatalf("update payment: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if updated.State != core.PaymentComplete || updated.TransactionNo != "TX-77" {
		t.Fatalf("expected persisted completion, got %+v", updated)
	}
	if updated.RefundedMinor() != 500 {
		t.Fatalf("expected refunded 500, got %d", updated.RefundedMinor())
	}

	stale := created
	stale.State = core.PaymentFailed
	if _, err := store.Update(ctx, stale); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected version conflict for stale write, got %v", err)
	}

	missing := samplePayment("PAY-missing")
	missing.Version = 1
	if _, err := store.Update(ctx, missing); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Fatalf("expected not found for missing payment, got %v", err)
	}
	if _, err := store.Get(ctx, "PAY-missing"); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Fatalf("expected not found on get, got %v", err)
	}
}

func TestPaymentStore_SealsTokenAtRest(t *testing.T) {
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := factory.PaymentStore().Create(ctx, samplePayment("PAY-sealed")); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	var raw []byte
	if err := factory.DB().NewRaw(
		"SELECT token_ciphertext FROM onetouch_payments WHERE id = ?",
		"PAY-sealed",
	).Scan(ctx, &raw); err != nil {
		t.Fatalf("select token column: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected sealed token bytes")
	}
	if bytes.Contains(raw, []byte("tok-secret")) {
		t.Fatalf("expected token value to be encrypted at rest")
	}
	if _, err := security.ParseEnvelopeMetadata(raw); err != nil {
		t.Fatalf("expected secret envelope, got %v", err)
	}
}

func TestPaymentStore_ListByStateOrdersOldestFirst(t *testing.T) {
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.PaymentStore()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"PAY-b", "PAY-a", "PAY-c"} {
		payment := samplePayment(id)
		payment.State = core.PaymentPending
		payment.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		payment.UpdatedAt = payment.CreatedAt
		if id == "PAY-c" {
			payment.State = core.PaymentComplete
		}
		if _, err := store.Create(ctx, payment); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	pending, err := store.ListByState(ctx, core.PaymentPending, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list by state: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending payments, got %d", len(pending))
	}
	if pending[0].ID != "PAY-b" || pending[1].ID != "PAY-a" {
		t.Fatalf("expected oldest first, got %s then %s", pending[0].ID, pending[1].ID)
	}
}

func TestSavedCardStore_SaveReplacesAndListsByDevice(t *testing.T) {
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"PAY-card-1", "PAY-card-2"} {
		if _, err := factory.PaymentStore().Create(ctx, samplePayment(id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	cards := factory.SavedCardStore()
	first := core.SavedCard{
		PaymentID:    "PAY-card-1",
		DeviceID:     "device-1",
		Token:        core.Token{Value: "card-token-1", KIN: "kin-1"},
		InstrumentID: "inst-1",
		CreatedAt:    time.Now().UTC().Add(-time.Minute),
	}
	if err := cards.Save(ctx, first); err != nil {
		t.Fatalf("save first card: %v", err)
	}
	first.Token.Value = "card-token-1b"
	if err := cards.Save(ctx, first); err != nil {
		t.Fatalf("replace first card: %v", err)
	}
	if err := cards.Save(ctx, core.SavedCard{
		PaymentID: "PAY-card-2",
		DeviceID:  "device-1",
		Token:     core.Token{Value: "card-token-2"},
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("save second card: %v", err)
	}

	stored, err := cards.GetByPayment(ctx, "PAY-card-1")
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if stored.Token.Value != "card-token-1b" || stored.InstrumentID != "inst-1" {
		t.Fatalf("expected replaced card, got %+v", stored)
	}

	listed, err := cards.ListByDevice(ctx, "device-1")
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if len(listed) != 2 || listed[0].PaymentID != "PAY-card-1" {
		t.Fatalf("expected two cards oldest first, got %+v", listed)
	}

	if _, err := cards.GetByPayment(ctx, "PAY-none"); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := cards.Save(ctx, core.SavedCard{PaymentID: "PAY-card-1"}); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty token, got %v", err)
	}
}

func TestOpen_RejectsUnsupportedDriver(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), sqlstore.PersistenceConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.Open(context.Background(), sqlstore.PersistenceConfig{Driver: "sqlite3"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func samplePayment(id string) core.Payment {
	return core.Payment{
		ID:          id,
		Flow:        core.FlowToken,
		DeviceID:    "device-1",
		AmountMinor: 3400,
		Currency:    "BGN",
		TaxMinor:    10,
		TotalMinor:  3410,
		Recipient:   core.Recipient{ID: "merchant@example.com", IDType: core.RecipientEmail},
		Description: "Order 42",
		Visibility:  []core.Visibility{core.VisibilityName, core.VisibilityKIN},
		State:       core.PaymentSent,
		Token:       &core.Token{Value: "tok-secret", KIN: "kin-1", ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}
}

func newSQLiteFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:onetouch-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.Open(context.Background(), sqlstore.PersistenceConfig{
		Driver:     sqlstore.DriverSQLite,
		DSN:        dsn,
		Identifier: "go-onetouch-tests",
	})
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}

	secrets, err := security.NewAppKeySecretProviderFromString("0123456789abcdef0123456789abcdef")
	if err != nil {
		_ = client.Close()
		t.Fatalf("new secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, secrets)
	if err != nil {
		_ = client.Close()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, func() {
		_ = client.Close()
	}
}

package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-onetouch/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type PaymentStore struct {
	db    *bun.DB
	repo  repository.Repository[*paymentRecord]
	codec tokenCodec
}

func NewPaymentStore(db *bun.DB, secrets core.SecretProvider) (*PaymentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*paymentRecord](db, paymentHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid payment repository wiring: %w", err)
		}
	}
	return &PaymentStore{db: db, repo: repo, codec: tokenCodec{secrets: secrets}}, nil
}

func (s *PaymentStore) Create(ctx context.Context, payment core.Payment) (core.Payment, error) {
	if s == nil || s.repo == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	payment.ID = strings.TrimSpace(payment.ID)
	if payment.ID == "" {
		return core.Payment{}, &core.InvalidInputError{Field: "payment_id", Reason: "is required"}
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	if payment.UpdatedAt.IsZero() {
		payment.UpdatedAt = payment.CreatedAt
	}
	payment.Version = 1

	record, err := s.toRecord(ctx, payment)
	if err != nil {
		return core.Payment{}, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, existsErr := tx.NewSelect().
			Model((*paymentRecord)(nil)).
			Where("id = ?", record.ID).
			Exists(ctx)
		if existsErr != nil {
			return existsErr
		}
		if exists {
			return core.ErrDuplicatePayment
		}
		_, createErr := s.repo.CreateTx(ctx, tx, record)
		return createErr
	})
	if err != nil {
		return core.Payment{}, err
	}
	return s.Get(ctx, payment.ID)
}

func (s *PaymentStore) Get(ctx context.Context, id string) (core.Payment, error) {
	if s == nil || s.repo == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Payment{}, err
	}
	if len(records) == 0 {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	return s.toDomain(ctx, records[0])
}

// Update writes the payment when the stored version matches and bumps it.
func (s *PaymentStore) Update(ctx context.Context, payment core.Payment) (core.Payment, error) {
	if s == nil || s.db == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	payment.ID = strings.TrimSpace(payment.ID)
	expected := payment.Version
	payment.Version = expected + 1
	payment.UpdatedAt = time.Now().UTC()

	record, err := s.toRecord(ctx, payment)
	if err != nil {
		return core.Payment{}, err
	}

	result, err := s.db.NewUpdate().
		Model(record).
		ExcludeColumn("id", "created_at").
		WherePK().
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		return core.Payment{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Payment{}, err
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, payment.ID); getErr != nil {
			return core.Payment{}, getErr
		}
		return core.Payment{}, core.ErrVersionConflict
	}
	return s.Get(ctx, payment.ID)
}

// ListByState returns payments in the given state that were last touched
// before the cutoff, oldest first.
func (s *PaymentStore) ListByState(ctx context.Context, state core.PaymentState, before time.Time, limit int) ([]core.Payment, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: payment store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("state", "=", string(state)),
		repository.OrderBy("updated_at ASC"),
		repository.SelectPaginate(limit, 0),
	}
	if !before.IsZero() {
		selectors = append(selectors, repository.SelectByTimetz("updated_at", "<", before.UTC()))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Payment, 0, len(records))
	for _, record := range records {
		payment, convErr := s.toDomain(ctx, record)
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, payment)
	}
	return out, nil
}

func (s *PaymentStore) toRecord(ctx context.Context, payment core.Payment) (*paymentRecord, error) {
	sealed, err := s.codec.seal(ctx, payment.Token)
	if err != nil {
		return nil, err
	}
	visibility := make([]string, 0, len(payment.Visibility))
	for _, entry := range payment.Visibility {
		visibility = append(visibility, string(entry))
	}
	refunds := make([]refundRecord, 0, len(payment.Refunds))
	for _, refund := range payment.Refunds {
		refunds = append(refunds, refundRecord{
			AmountMinor: refund.AmountMinor,
			Reason:      refund.Reason,
			RefundNo:    refund.RefundNo,
			CreatedAt:   refund.CreatedAt.UTC(),
		})
	}
	return &paymentRecord{
		ID:              payment.ID,
		Flow:            string(payment.Flow),
		DeviceID:        payment.DeviceID,
		AmountMinor:     payment.AmountMinor,
		Currency:        payment.Currency,
		TaxMinor:        payment.TaxMinor,
		TotalMinor:      payment.TotalMinor,
		RecipientID:     payment.Recipient.ID,
		RecipientType:   string(payment.Recipient.IDType),
		Description:     payment.Description,
		Reason:          payment.Reason,
		Visibility:      visibility,
		State:           string(payment.State),
		TransactionNo:   payment.TransactionNo,
		InstrumentID:    payment.InstrumentID,
		SaveCard:        payment.SaveCard,
		SendAttempted:   payment.SendAttempted,
		TokenCiphertext: sealed,
		FailureReason:   payment.FailureReason,
		ProviderCode:    payment.ProviderCode,
		Refunds:         refunds,
		Version:         payment.Version,
		CreatedAt:       payment.CreatedAt.UTC(),
		UpdatedAt:       payment.UpdatedAt.UTC(),
	}, nil
}

func (s *PaymentStore) toDomain(ctx context.Context, record *paymentRecord) (core.Payment, error) {
	if record == nil {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	token, err := s.codec.open(ctx, record.TokenCiphertext)
	if err != nil {
		return core.Payment{}, err
	}
	var visibility []core.Visibility
	for _, entry := range record.Visibility {
		visibility = append(visibility, core.Visibility(entry))
	}
	var refunds []core.RefundEntry
	for _, refund := range record.Refunds {
		refunds = append(refunds, core.RefundEntry{
			AmountMinor: refund.AmountMinor,
			Reason:      refund.Reason,
			RefundNo:    refund.RefundNo,
			CreatedAt:   refund.CreatedAt.UTC(),
		})
	}
	return core.Payment{
		ID:            record.ID,
		Flow:          core.Flow(record.Flow),
		DeviceID:      record.DeviceID,
		AmountMinor:   record.AmountMinor,
		Currency:      record.Currency,
		TaxMinor:      record.TaxMinor,
		TotalMinor:    record.TotalMinor,
		Recipient:     core.Recipient{ID: record.RecipientID, IDType: core.RecipientType(record.RecipientType)},
		Description:   record.Description,
		Reason:        record.Reason,
		Visibility:    visibility,
		State:         core.PaymentState(record.State),
		TransactionNo: record.TransactionNo,
		InstrumentID:  record.InstrumentID,
		SaveCard:      record.SaveCard,
		SendAttempted: record.SendAttempted,
		Token:         token,
		FailureReason: record.FailureReason,
		ProviderCode:  record.ProviderCode,
		Refunds:       refunds,
		Version:       record.Version,
		CreatedAt:     record.CreatedAt.UTC(),
		UpdatedAt:     record.UpdatedAt.UTC(),
	}, nil
}

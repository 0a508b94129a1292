package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-onetouch/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type SavedCardStore struct {
	db    *bun.DB
	repo  repository.Repository[*savedCardRecord]
	codec tokenCodec
}

func NewSavedCardStore(db *bun.DB, secrets core.SecretProvider) (*SavedCardStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*savedCardRecord](db, savedCardHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid saved card repository wiring: %w", err)
		}
	}
	return &SavedCardStore{db: db, repo: repo, codec: tokenCodec{secrets: secrets}}, nil
}

// Save keeps one card per payment; saving again replaces the sealed token.
func (s *SavedCardStore) Save(ctx context.Context, card core.SavedCard) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: saved card store is not configured")
	}
	card.PaymentID = strings.TrimSpace(card.PaymentID)
	if card.PaymentID == "" {
		return &core.InvalidInputError{Field: "payment_id", Reason: "is required"}
	}
	if card.Token.IsZero() {
		return &core.InvalidInputError{Field: "token", Reason: "is required"}
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}
	sealed, err := s.codec.seal(ctx, &card.Token)
	if err != nil {
		return err
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &savedCardRecord{}
		findErr := tx.NewSelect().
			Model(record).
			Where("payment_id = ?", card.PaymentID).
			Limit(1).
			Scan(ctx)
		created := false
		if findErr != nil {
			if !errors.Is(findErr, sql.ErrNoRows) {
				return findErr
			}
			created = true
			record = &savedCardRecord{PaymentID: card.PaymentID, CreatedAt: card.CreatedAt.UTC()}
		}
		record.DeviceID = strings.TrimSpace(card.DeviceID)
		record.TokenCiphertext = sealed
		record.InstrumentID = card.InstrumentID

		if created {
			_, insertErr := s.repo.CreateTx(ctx, tx, record)
			return insertErr
		}
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("payment_id = ?", record.PaymentID).
			Exec(ctx)
		return updateErr
	})
}

func (s *SavedCardStore) GetByPayment(ctx context.Context, paymentID string) (core.SavedCard, error) {
	if s == nil || s.repo == nil {
		return core.SavedCard{}, fmt.Errorf("sqlstore: saved card store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("payment_id", "=", strings.TrimSpace(paymentID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.SavedCard{}, err
	}
	if len(records) == 0 {
		return core.SavedCard{}, core.ErrPaymentNotFound
	}
	return s.toDomain(ctx, records[0])
}

func (s *SavedCardStore) ListByDevice(ctx context.Context, deviceID string) ([]core.SavedCard, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: saved card store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("device_id", "=", strings.TrimSpace(deviceID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.SavedCard, 0, len(records))
	for _, record := range records {
		card, convErr := s.toDomain(ctx, record)
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, card)
	}
	return out, nil
}

func (s *SavedCardStore) toDomain(ctx context.Context, record *savedCardRecord) (core.SavedCard, error) {
	token, err := s.codec.open(ctx, record.TokenCiphertext)
	if err != nil {
		return core.SavedCard{}, err
	}
	card := core.SavedCard{
		PaymentID:    record.PaymentID,
		DeviceID:     record.DeviceID,
		InstrumentID: record.InstrumentID,
		CreatedAt:    record.CreatedAt.UTC(),
	}
	if token != nil {
		card.Token = *token
	}
	return card, nil
}

package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Payment ids are merchant assigned strings, so the repository UUID is a
// stable name-based projection and SetID never overwrites an assigned id.
func paymentHandlers() repository.ModelHandlers[*paymentRecord] {
	return repository.ModelHandlers[*paymentRecord]{
		NewRecord: func() *paymentRecord {
			return &paymentRecord{}
		},
		GetID: func(record *paymentRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return recordUUID(record.ID)
		},
		SetID: func(record *paymentRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.ID) != "" {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *paymentRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func savedCardHandlers() repository.ModelHandlers[*savedCardRecord] {
	return repository.ModelHandlers[*savedCardRecord]{
		NewRecord: func() *savedCardRecord {
			return &savedCardRecord{}
		},
		GetID: func(record *savedCardRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return recordUUID(record.PaymentID)
		},
		SetID: func(record *savedCardRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.PaymentID) != "" {
				return
			}
			record.PaymentID = id.String()
		},
		GetIdentifier: func() string {
			return "payment_id"
		},
		GetIdentifierValue: func(record *savedCardRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.PaymentID)
		},
	}
}

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("go-onetouch"))

func recordUUID(value string) uuid.UUID {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil
	}
	if parsed, err := uuid.Parse(value); err == nil {
		return parsed
	}
	return uuid.NewSHA1(recordNamespace, []byte(value))
}

package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type paymentRecord struct {
	bun.BaseModel `bun:"table:onetouch_payments,alias:op"`

	ID              string         `bun:"id,pk"`
	Flow            string         `bun:"flow,notnull"`
	DeviceID        string         `bun:"device_id,notnull"`
	AmountMinor     int64          `bun:"amount_minor,notnull"`
	Currency        string         `bun:"currency,notnull"`
	TaxMinor        int64          `bun:"tax_minor,notnull"`
	TotalMinor      int64          `bun:"total_minor,notnull"`
	RecipientID     string         `bun:"recipient_id,notnull"`
	RecipientType   string         `bun:"recipient_type,notnull"`
	Description     string         `bun:"description,notnull"`
	Reason          string         `bun:"reason,notnull"`
	Visibility      []string       `bun:"visibility,type:jsonb,notnull"`
	State           string         `bun:"state,notnull"`
	TransactionNo   string         `bun:"transaction_no,notnull"`
	InstrumentID    string         `bun:"instrument_id,notnull"`
	SaveCard        bool           `bun:"save_card,notnull"`
	SendAttempted   bool           `bun:"send_attempted,notnull"`
	TokenCiphertext []byte         `bun:"token_ciphertext"`
	FailureReason   string         `bun:"failure_reason,notnull"`
	ProviderCode    string         `bun:"provider_code,notnull"`
	Refunds         []refundRecord `bun:"refunds,type:jsonb,notnull"`
	Version         int64          `bun:"version,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type refundRecord struct {
	AmountMinor int64     `json:"amount_minor"`
	Reason      string    `json:"reason"`
	RefundNo    string    `json:"refund_no,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type savedCardRecord struct {
	bun.BaseModel `bun:"table:onetouch_saved_cards,alias:osc"`

	PaymentID       string    `bun:"payment_id,pk"`
	DeviceID        string    `bun:"device_id,notnull"`
	TokenCiphertext []byte    `bun:"token_ciphertext,notnull"`
	InstrumentID    string    `bun:"instrument_id,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

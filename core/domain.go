package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Flow string

const (
	FlowToken Flow = "token"
	FlowNoReg Flow = "noreg"
)

type Credentials struct {
	AppID     string
	SecretKey string
	TestMode  bool
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return &ConfigurationError{Field: "app_id", Reason: "is required"}
	}
	if c.SecretKey == "" {
		return &ConfigurationError{Field: "secret_key", Reason: "is required"}
	}
	return nil
}

// DeviceIdentity identifies one calling context: an order in the token flow
// or an installation in the no-registration flow.
type DeviceIdentity struct {
	DeviceID string `json:"device_id"`
}

type Token struct {
	Value     string    `json:"value"`
	KIN       string    `json:"kin"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username,omitempty"`
	RealName  string    `json:"real_name,omitempty"`
}

func (t Token) IsZero() bool {
	return strings.TrimSpace(t.Value) == ""
}

func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

type RecipientType string

const (
	RecipientKIN   RecipientType = "KIN"
	RecipientEmail RecipientType = "EMAIL"
	RecipientGSM   RecipientType = "GSM"
)

type Recipient struct {
	ID     string        `json:"id" validate:"required,max=128"`
	IDType RecipientType `json:"id_type" validate:"required,oneof=KIN EMAIL GSM"`
}

type Visibility string

const (
	VisibilityKIN   Visibility = "KIN"
	VisibilityName  Visibility = "NAME"
	VisibilityGSM   Visibility = "GSM"
	VisibilityEmail Visibility = "EMAIL"
)

type Payment struct {
	ID            string        `json:"id"`
	Flow          Flow          `json:"flow"`
	DeviceID      string        `json:"device_id"`
	AmountMinor   int64         `json:"amount_minor"`
	Currency      string        `json:"currency"`
	TaxMinor      int64         `json:"tax_minor"`
	TotalMinor    int64         `json:"total_minor"`
	Recipient     Recipient     `json:"recipient"`
	Description   string        `json:"description"`
	Reason        string        `json:"reason"`
	Visibility    []Visibility  `json:"visibility,omitempty"`
	State         PaymentState  `json:"state"`
	TransactionNo string        `json:"transaction_no,omitempty"`
	InstrumentID  string        `json:"instrument_id,omitempty"`
	SaveCard      bool          `json:"save_card"`
	SendAttempted bool          `json:"send_attempted"`
	Token         *Token        `json:"-"`
	FailureReason string        `json:"failure_reason,omitempty"`
	ProviderCode  string        `json:"provider_code,omitempty"`
	Refunds       []RefundEntry `json:"refunds,omitempty"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Amount renders the minor-unit amount as a decimal in the payment currency.
func (p Payment) Amount() decimal.Decimal {
	return FromMinorUnits(p.AmountMinor, p.Currency)
}

func (p Payment) RefundedMinor() int64 {
	var total int64
	for _, refund := range p.Refunds {
		total += refund.AmountMinor
	}
	return total
}

type RefundEntry struct {
	AmountMinor int64     `json:"amount_minor"`
	Reason      string    `json:"reason"`
	RefundNo    string    `json:"refund_no,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentInstrument struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Balance  int64  `json:"balance"`
	Eligible bool   `json:"eligible"`
}

// SavedCard is the reusable token returned when a no-registration payment
// completes with card saving requested.
type SavedCard struct {
	PaymentID    string    `json:"payment_id"`
	DeviceID     string    `json:"device_id"`
	Token        Token     `json:"token"`
	InstrumentID string    `json:"instrument_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserInfo struct {
	KIN         string              `json:"kin"`
	Username    string              `json:"username"`
	RealName    string              `json:"real_name"`
	GSM         string              `json:"gsm,omitempty"`
	Email       string              `json:"email,omitempty"`
	Instruments []PaymentInstrument `json:"instruments,omitempty"`
}

type StartPaymentRequest struct {
	Flow        Flow            `validate:"required,oneof=token noreg"`
	PaymentID   string          `validate:"required_if=Flow noreg,omitempty,max=64,printascii"`
	DeviceID    string          `validate:"required_if=Flow noreg,omitempty,max=128"`
	Session     *TokenManager   `validate:"required_if=Flow token"`
	Amount      decimal.Decimal `validate:"-"`
	Currency    string          `validate:"omitempty,len=3,alpha"`
	Recipient   Recipient
	Description string       `validate:"required,max=255"`
	Reason      string       `validate:"max=255"`
	Visibility  []Visibility `validate:"dive,oneof=KIN NAME GSM EMAIL"`
	// ExpectedTotal is the order total in minor units including provider fees.
	ExpectedTotal *int64
	InstrumentID  string `validate:"max=64"`
	SaveCard      bool
	ReturnURL     string `validate:"omitempty,url"`
	CancelURL     string `validate:"omitempty,url"`
}

type StartPaymentResult struct {
	PaymentID   string       `json:"payment_id"`
	RedirectURL string       `json:"redirect_url,omitempty"`
	State       PaymentState `json:"state"`
}

type CallbackResult struct {
	PaymentID string       `json:"payment_id"`
	State     PaymentState `json:"state"`
	Changed   bool         `json:"changed"`
}

type RefundRequest struct {
	PaymentID string          `validate:"required,max=64"`
	Amount    decimal.Decimal `validate:"-"`
	Reason    string          `validate:"required,max=255"`
}

type RefundResult struct {
	PaymentID     string    `json:"payment_id"`
	AmountMinor   int64     `json:"amount_minor"`
	RefundNo      string    `json:"refund_no,omitempty"`
	RefundedMinor int64     `json:"refunded_minor"`
	CreatedAt     time.Time `json:"created_at"`
}

// PaymentStateChange is emitted once for every applied transition.
type PaymentStateChange struct {
	PaymentID     string       `json:"payment_id"`
	Flow          Flow         `json:"flow"`
	From          PaymentState `json:"from"`
	To            PaymentState `json:"to"`
	TransactionNo string       `json:"transaction_no,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Source        string       `json:"source"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

type ReconcileRequest struct {
	PaymentID string    `json:"payment_id"`
	Flow      Flow      `json:"flow"`
	Reason    string    `json:"reason"`
	NotBefore time.Time `json:"not_before"`
}

package command

import (
	"strings"

	"github.com/goliatone/go-onetouch/core"
)

const (
	TypeStartPayment   = "onetouch.command.payment.start"
	TypeCheckStatus    = "onetouch.command.payment.check_status"
	TypeHandleCallback = "onetouch.command.callback.handle"
	TypeRefund         = "onetouch.command.payment.refund"
)

type StartPaymentMessage struct {
	Request core.StartPaymentRequest
}

func (StartPaymentMessage) Type() string { return TypeStartPayment }

func (m StartPaymentMessage) Validate() error {
	switch m.Request.Flow {
	case core.FlowToken:
		if m.Request.Session == nil {
			return invalidMessage(m.Type(), "session", "token flow requires a token session")
		}
	case core.FlowNoReg:
		if strings.TrimSpace(m.Request.PaymentID) == "" {
			return invalidMessage(m.Type(), "payment_id", "no-registration flow requires a payment id")
		}
	default:
		return invalidMessage(m.Type(), "flow", "must be token or noreg")
	}
	if !m.Request.Amount.IsPositive() {
		return invalidMessage(m.Type(), "amount", "must be positive")
	}
	return nil
}

// CheckStatusMessage polls the provider and applies the mapped state.
type CheckStatusMessage struct {
	PaymentID string
}

func (CheckStatusMessage) Type() string { return TypeCheckStatus }

func (m CheckStatusMessage) Validate() error {
	if strings.TrimSpace(m.PaymentID) == "" {
		return invalidMessage(m.Type(), "payment_id", "is required")
	}
	return nil
}

type HandleCallbackMessage struct {
	Params map[string]string
}

func (HandleCallbackMessage) Type() string { return TypeHandleCallback }

func (m HandleCallbackMessage) Validate() error {
	if len(m.Params) == 0 {
		return invalidMessage(m.Type(), "params", "callback parameters are required")
	}
	return nil
}

type RefundMessage struct {
	Request core.RefundRequest
}

func (RefundMessage) Type() string { return TypeRefund }

func (m RefundMessage) Validate() error {
	if strings.TrimSpace(m.Request.PaymentID) == "" {
		return invalidMessage(m.Type(), "payment_id", "is required")
	}
	if !m.Request.Amount.IsPositive() {
		return invalidMessage(m.Type(), "amount", "must be positive")
	}
	if strings.TrimSpace(m.Request.Reason) == "" {
		return invalidMessage(m.Type(), "reason", "is required")
	}
	return nil
}

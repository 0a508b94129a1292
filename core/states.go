package core

import "strings"

type PaymentState string

const (
	PaymentCreated        PaymentState = "CREATED"
	PaymentInitialized    PaymentState = "INITIALIZED"
	PaymentDetailsChecked PaymentState = "DETAILS_CHECKED"
	PaymentSent           PaymentState = "SENT"
	PaymentRedirectIssued PaymentState = "REDIRECT_ISSUED"
	PaymentProcessing     PaymentState = "PROCESSING"
	PaymentPending        PaymentState = "PENDING"
	PaymentComplete       PaymentState = "COMPLETE"
	PaymentFailed         PaymentState = "FAILED"
)

var paymentStateRank = map[PaymentState]int{
	PaymentCreated:        0,
	PaymentInitialized:    1,
	PaymentDetailsChecked: 2,
	PaymentSent:           3,
	PaymentRedirectIssued: 3,
	PaymentProcessing:     4,
	PaymentPending:        5,
	PaymentComplete:       6,
	PaymentFailed:         6,
}

func (s PaymentState) Valid() bool {
	_, ok := paymentStateRank[s]
	return ok
}

func (s PaymentState) Terminal() bool {
	return s == PaymentComplete || s == PaymentFailed
}

// CanTransition reports whether moving from s to next is a forward step.
// Terminal states never move; FAILED is reachable from any other state.
func (s PaymentState) CanTransition(next PaymentState) bool {
	if s.Terminal() || !next.Valid() || !s.Valid() {
		return false
	}
	if next == PaymentFailed {
		return true
	}
	return paymentStateRank[next] > paymentStateRank[s]
}

func ParsePaymentState(raw string) (PaymentState, bool) {
	state := PaymentState(strings.ToUpper(strings.TrimSpace(raw)))
	return state, state.Valid()
}

// Provider status codes are encoded differently per flow and are never
// shared. Unknown codes map to FAILED.
var tokenFlowStatus = map[string]PaymentState{
	"2": PaymentProcessing,
	"3": PaymentPending,
	"4": PaymentComplete,
}

var noRegFlowStatus = map[string]PaymentState{
	"2": PaymentProcessing,
	"3": PaymentComplete,
	"4": PaymentFailed,
}

func MapProviderStatus(flow Flow, code string) PaymentState {
	table := tokenFlowStatus
	if flow == FlowNoReg {
		table = noRegFlowStatus
	}
	if state, ok := table[strings.TrimSpace(code)]; ok {
		return state
	}
	return PaymentFailed
}

type TokenState string

const (
	TokenNone          TokenState = "NO_TOKEN"
	TokenCodeRequested TokenState = "CODE_REQUESTED"
	TokenAcquired      TokenState = "TOKEN_ACQUIRED"
	TokenInvalidated   TokenState = "INVALIDATED"
)

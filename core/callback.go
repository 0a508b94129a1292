package core

import (
	"context"
	"errors"
	"strings"
)

// CallbackNotice is an authenticated callback resolved to a known payment.
type CallbackNotice struct {
	Payment       Payment
	Target        PaymentState
	ProviderState string
	TransactionNo string
}

// CallbackVerifier authenticates inbound notifications and resolves them to
// a stored payment. It never mutates state.
type CallbackVerifier struct {
	tokenSigner      *Signer
	noRegSigner      *Signer
	requireSignature bool
	signedParams     []string
	payments         PaymentStore
}

func NewCallbackVerifier(client *Client, cfg CallbackConfig, payments PaymentStore) (*CallbackVerifier, error) {
	if client == nil {
		return nil, &ConfigurationError{Field: "client", Reason: "is required"}
	}
	if payments == nil {
		return nil, &ConfigurationError{Field: "payment_store", Reason: "is required"}
	}
	signed := make([]string, 0, len(cfg.SignedParams))
	for _, name := range cfg.SignedParams {
		if name = strings.ToUpper(strings.TrimSpace(name)); name != "" {
			signed = append(signed, name)
		}
	}
	return &CallbackVerifier{
		tokenSigner:      client.SignerFor(FlowToken),
		noRegSigner:      client.SignerFor(FlowNoReg),
		requireSignature: cfg.RequireSignature,
		signedParams:     signed,
		payments:         payments,
	}, nil
}

// Verify checks the signature before anything else and fails closed. Digests
// are computed over the values exactly as delivered; the payment is then
// required to belong to a flow whose digest matched.
func (v *CallbackVerifier) Verify(ctx context.Context, raw map[string]string) (CallbackNotice, error) {
	if v == nil {
		return CallbackNotice{}, &ConfigurationError{Field: "callback_verifier", Reason: "is nil"}
	}
	params := canonicalCallbackNames(raw)
	verified, err := v.authenticate(params)
	if err != nil {
		return CallbackNotice{}, err
	}

	paymentID := strings.TrimSpace(params[ParamID])
	if paymentID == "" {
		return CallbackNotice{}, &InvalidInputError{Field: ParamID, Reason: "is required"}
	}
	providerState := strings.TrimSpace(params[ParamState])
	if providerState == "" {
		return CallbackNotice{}, &InvalidInputError{Field: ParamState, Reason: "is required"}
	}
	payment, err := v.payments.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return CallbackNotice{}, &UnknownPaymentError{PaymentID: paymentID}
		}
		return CallbackNotice{}, err
	}
	if len(verified) > 0 && !verified[payment.Flow] {
		return CallbackNotice{}, &SignatureMismatchError{Param: v.signerFor(payment.Flow).Param()}
	}
	return CallbackNotice{
		Payment:       payment,
		Target:        callbackTarget(payment.Flow, providerState),
		ProviderState: providerState,
		TransactionNo: strings.TrimSpace(params[ParamTransactionNo]),
	}, nil
}

// authenticate checks every signature parameter present and returns the
// flows whose digest matched. An unsigned callback yields an empty set when
// signatures are optional.
func (v *CallbackVerifier) authenticate(params map[string]string) (map[Flow]bool, error) {
	signed := v.signedSubset(params)
	verified := make(map[Flow]bool, 2)
	var mismatch error
	for _, flow := range []Flow{FlowToken, FlowNoReg} {
		signer := v.signerFor(flow)
		provided := params[signer.Param()]
		if strings.TrimSpace(provided) == "" {
			continue
		}
		if err := signer.Verify(signed, "", provided); err != nil {
			if mismatch == nil {
				mismatch = err
			}
			continue
		}
		verified[flow] = true
	}
	switch {
	case len(verified) > 0:
		return verified, nil
	case mismatch != nil:
		return nil, mismatch
	case v.requireSignature:
		return nil, &SignatureMismatchError{Param: ParamChecksum}
	}
	return verified, nil
}

func (v *CallbackVerifier) signerFor(flow Flow) *Signer {
	if flow == FlowNoReg {
		return v.noRegSigner
	}
	return v.tokenSigner
}

func (v *CallbackVerifier) signedSubset(params map[string]string) map[string]string {
	if len(v.signedParams) == 0 {
		return params
	}
	subset := make(map[string]string, len(v.signedParams))
	for _, name := range v.signedParams {
		subset[name] = params[name]
	}
	return subset
}

// callbackTarget accepts a numeric provider code, mapped with the flow's own
// table, or a state name.
func callbackTarget(flow Flow, providerState string) PaymentState {
	if state, ok := ParsePaymentState(providerState); ok {
		return state
	}
	return MapProviderStatus(flow, providerState)
}

// canonicalCallbackNames upper-cases parameter names and leaves values as
// delivered, since they are signed byte for byte.
func canonicalCallbackNames(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		out[strings.ToUpper(strings.TrimSpace(key))] = value
	}
	return out
}

// ApplyCallback applies a verified notice. Duplicate and out-of-order
// callbacks are no-ops that report Changed=false.
func (o *Orchestrator) ApplyCallback(ctx context.Context, notice CallbackNotice) (CallbackResult, error) {
	payment := notice.Payment
	next := notice.Target
	needsPoll := notice.TransactionNo == "" || (payment.Flow == FlowNoReg && payment.SaveCard)
	if next == PaymentComplete && needsPoll && payment.State.CanTransition(next) {
		// Transaction numbers and saved card tokens only arrive with the
		// status poll.
		polled, err := o.CheckStatus(ctx, payment.ID)
		if err != nil {
			return CallbackResult{PaymentID: payment.ID, State: payment.State}, err
		}
		return CallbackResult{PaymentID: polled.ID, State: polled.State, Changed: polled.State != payment.State}, nil
	}
	updated, changed, err := o.transition(ctx, payment, next, "callback", func(p *Payment) {
		if notice.TransactionNo != "" {
			p.TransactionNo = notice.TransactionNo
		}
		if next == PaymentFailed {
			p.FailureReason = "callback reported state " + notice.ProviderState
			p.ProviderCode = notice.ProviderState
		}
	})
	if err != nil {
		return CallbackResult{PaymentID: payment.ID, State: payment.State}, err
	}
	return CallbackResult{PaymentID: updated.ID, State: updated.State, Changed: changed}, nil
}

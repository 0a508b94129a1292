package core

import (
	"context"
	"errors"
	"strings"
)

const maxTransitionAttempts = 3

// Orchestrator drives the payment state machine for both flows. It is the
// only writer of Payment state.
type Orchestrator struct {
	client    *Client
	config    Config
	payments  PaymentStore
	cards     SavedCardStore
	events    PaymentEventSink
	scheduler ReconcileScheduler
	clock     Clock
	logger    Logger
}

type OrchestratorDependencies struct {
	Client    *Client
	Config    Config
	Payments  PaymentStore
	Cards     SavedCardStore
	Events    PaymentEventSink
	Scheduler ReconcileScheduler
	Clock     Clock
	Logger    Logger
}

func NewOrchestrator(deps OrchestratorDependencies) (*Orchestrator, error) {
	if deps.Client == nil {
		return nil, &ConfigurationError{Field: "client", Reason: "is required"}
	}
	if deps.Payments == nil {
		return nil, &ConfigurationError{Field: "payment_store", Reason: "is required"}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	return &Orchestrator{
		client:    deps.Client,
		config:    deps.Config,
		payments:  deps.Payments,
		cards:     deps.Cards,
		events:    deps.Events,
		scheduler: deps.Scheduler,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}, nil
}

// StartTokenPayment runs init, check and send. The payment is persisted
// under the provider id right after init so a crash afterwards is
// recoverable by polling.
func (o *Orchestrator) StartTokenPayment(ctx context.Context, req StartPaymentRequest, amountMinor int64, currency string) (Payment, error) {
	session := req.Session
	if session == nil {
		return Payment{}, &NoTokenAvailableError{State: TokenNone, Operation: "start_payment"}
	}
	token, err := session.Token()
	if err != nil {
		return Payment{}, err
	}
	device := session.Device()

	draft := Payment{
		Flow:         FlowToken,
		DeviceID:     device.DeviceID,
		AmountMinor:  amountMinor,
		Currency:     currency,
		Recipient:    req.Recipient,
		Description:  req.Description,
		Reason:       req.Reason,
		Visibility:   append([]Visibility(nil), req.Visibility...),
		InstrumentID: strings.TrimSpace(req.InstrumentID),
		Token:        &token,
	}
	if err := o.precheckParams(FlowToken, checkParams(draft, "0", token)); err != nil {
		return Payment{}, err
	}

	resp, err := o.client.Call(ctx, EndpointPaymentInit, map[string]string{
		ParamDeviceID: device.DeviceID,
		ParamToken:    token.Value,
		ParamType:     "send",
	}, token.KIN)
	if err != nil {
		o.invalidateIfPoisoned(ctx, session, err)
		return Payment{}, err
	}
	providerID, err := resp.RequireString("id")
	if err != nil {
		return Payment{}, err
	}

	now := o.clock.Now()
	draft.ID = providerID
	draft.State = PaymentInitialized
	draft.CreatedAt = now
	draft.UpdatedAt = now
	payment, err := o.payments.Create(ctx, draft)
	if err != nil {
		return Payment{}, err
	}
	o.emit(ctx, payment, PaymentCreated, "payment_init")

	payment, err = o.checkDetails(ctx, payment, token, req.ExpectedTotal)
	if err != nil {
		o.invalidateIfPoisoned(ctx, session, err)
		return payment, err
	}
	payment, err = o.send(ctx, payment, token)
	if err != nil {
		o.invalidateIfPoisoned(ctx, session, err)
		return payment, err
	}
	return payment, nil
}

func (o *Orchestrator) checkDetails(ctx context.Context, payment Payment, token Token, expectedTotal *int64) (Payment, error) {
	resp, err := o.client.Call(ctx, EndpointPaymentCheck, checkParams(payment, payment.ID, token), token.KIN)
	if err != nil {
		return o.failWith(ctx, payment, err, "payment_check")
	}

	amount, err := resp.RequireInt64("amount")
	if err != nil {
		return o.failWith(ctx, payment, err, "payment_check")
	}
	tax, _ := resp.Int64("tax")
	total, err := resp.RequireInt64("total")
	if err != nil {
		return o.failWith(ctx, payment, err, "payment_check")
	}
	switch {
	case amount != payment.AmountMinor:
		return o.failWith(ctx, payment, &ValidationError{Field: "amount", Expected: formatMinor(payment.AmountMinor), Actual: formatMinor(amount)}, "payment_check")
	case total != amount+tax:
		return o.failWith(ctx, payment, &ValidationError{Field: "total", Expected: formatMinor(amount + tax), Actual: formatMinor(total)}, "payment_check")
	case expectedTotal != nil && *expectedTotal != total:
		return o.failWith(ctx, payment, &ValidationError{Field: "expected_total", Expected: formatMinor(*expectedTotal), Actual: formatMinor(total)}, "payment_check")
	}

	instrument, err := selectInstrument(instrumentsFromResponse(resp), payment.InstrumentID)
	if err != nil {
		return o.failWith(ctx, payment, err, "payment_check")
	}
	checked, _, err := o.transition(ctx, payment, PaymentDetailsChecked, "payment_check", func(p *Payment) {
		p.TaxMinor = tax
		p.TotalMinor = total
		p.InstrumentID = instrument.ID
	})
	return checked, err
}

// send is the money-moving call. SendAttempted is persisted first; a payment
// that already attempted a send is never sent again and must be reconciled.
func (o *Orchestrator) send(ctx context.Context, payment Payment, token Token) (Payment, error) {
	current, err := o.payments.Get(ctx, payment.ID)
	if err != nil {
		return payment, err
	}
	if current.SendAttempted {
		return current, &InvalidInputError{Field: "payment_id", Reason: "send already attempted; reconcile with a status poll"}
	}
	if current.State != PaymentDetailsChecked {
		return current, &InvalidInputError{Field: "state", Reason: "payment must be " + string(PaymentDetailsChecked) + " before send, got " + string(current.State)}
	}
	marked, err := o.update(ctx, current, func(p *Payment) {
		p.SendAttempted = true
	})
	if err != nil {
		return current, err
	}

	resp, err := o.client.Call(ctx, EndpointPaymentSend, map[string]string{
		ParamDeviceID: marked.DeviceID,
		ParamToken:    token.Value,
		ParamID:       marked.ID,
		ParamPIN:      marked.InstrumentID,
	}, token.KIN)
	if err != nil {
		if outcomeUnknown(err) {
			o.scheduleReconcile(ctx, marked, "send outcome unknown")
			return marked, &UnknownOutcomeError{PaymentID: marked.ID, Cause: err}
		}
		return o.failWith(ctx, marked, err, "payment_send")
	}

	sent, _, err := o.transition(ctx, marked, PaymentSent, "payment_send", nil)
	if err != nil {
		return sent, err
	}
	code := resp.String("state")
	if code == "" {
		return sent, nil
	}
	applied, err := o.applyProviderStatus(ctx, sent, code, resp, "payment_send")
	if errors.Is(err, ErrMalformedResponse) {
		// The send went through; only the reported outcome is incomplete.
		o.scheduleReconcile(ctx, applied, "send response incomplete")
		return applied, &UnknownOutcomeError{PaymentID: applied.ID, Cause: err}
	}
	return applied, err
}

// CheckStatus polls the provider for a non-terminal payment and applies the
// reported state. Terminal payments are returned without a network call.
func (o *Orchestrator) CheckStatus(ctx context.Context, paymentID string) (Payment, error) {
	payment, err := o.load(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if payment.State.Terminal() {
		return payment, nil
	}

	var resp Response
	switch payment.Flow {
	case FlowNoReg:
		if payment.State == PaymentCreated {
			return payment, nil
		}
		resp, err = o.client.Call(ctx, EndpointNoRegStatus, map[string]string{
			ParamDeviceID:      payment.DeviceID,
			ParamID:            payment.ID,
			ParamRecipient:     payment.Recipient.ID,
			ParamRecipientType: string(payment.Recipient.IDType),
		}, "")
	default:
		if !payment.SendAttempted && paymentStateRank[payment.State] < paymentStateRank[PaymentSent] {
			return payment, nil
		}
		if payment.Token == nil || payment.Token.IsZero() {
			return payment, &NoTokenAvailableError{State: TokenNone, Operation: "check_status"}
		}
		resp, err = o.client.Call(ctx, EndpointPaymentStatus, map[string]string{
			ParamDeviceID: payment.DeviceID,
			ParamToken:    payment.Token.Value,
			ParamID:       payment.ID,
		}, payment.Token.KIN)
		if err != nil {
			return o.revokeStoredToken(ctx, payment, err)
		}
	}
	if err != nil {
		return payment, err
	}
	code, err := resp.RequireString("state")
	if err != nil {
		return payment, err
	}
	return o.applyProviderStatus(ctx, payment, code, resp, "status_poll")
}

func (o *Orchestrator) applyProviderStatus(ctx context.Context, payment Payment, code string, resp Response, source string) (Payment, error) {
	next := MapProviderStatus(payment.Flow, code)
	transactionNo := resp.String("no")
	if next == PaymentComplete && transactionNo == "" {
		return payment, &MalformedResponseError{Endpoint: resp.Endpoint, Reason: "complete status without transaction number"}
	}
	if !payment.State.CanTransition(next) {
		return payment, nil
	}
	if next == PaymentComplete && payment.Flow == FlowNoReg && payment.SaveCard {
		if err := o.saveCard(ctx, payment, resp); err != nil {
			return payment, err
		}
	}
	updated, _, err := o.transition(ctx, payment, next, source, func(p *Payment) {
		if transactionNo != "" {
			p.TransactionNo = transactionNo
		}
		if next == PaymentFailed {
			p.FailureReason = "provider reported status " + code
			p.ProviderCode = code
		}
	})
	return updated, err
}

// transition applies a forward state change and emits exactly one event for
// it. Backward, equal and post-terminal moves are no-ops.
func (o *Orchestrator) transition(ctx context.Context, payment Payment, next PaymentState, source string, mutate func(*Payment)) (Payment, bool, error) {
	current := payment
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if !current.State.CanTransition(next) {
			return current, false, nil
		}
		previous := current.State
		candidate := current
		if mutate != nil {
			mutate(&candidate)
		}
		candidate.State = next
		candidate.UpdatedAt = o.clock.Now()
		updated, err := o.payments.Update(ctx, candidate)
		if err == nil {
			o.emit(ctx, updated, previous, source)
			return updated, true, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return current, false, err
		}
		current, err = o.load(ctx, current.ID)
		if err != nil {
			return payment, false, err
		}
	}
	return current, false, ErrVersionConflict
}

func (o *Orchestrator) update(ctx context.Context, payment Payment, mutate func(*Payment)) (Payment, error) {
	candidate := payment
	mutate(&candidate)
	candidate.UpdatedAt = o.clock.Now()
	return o.payments.Update(ctx, candidate)
}

// failWith moves the payment to FAILED with cause as the recorded reason and
// returns cause to the caller.
func (o *Orchestrator) failWith(ctx context.Context, payment Payment, cause error, source string) (Payment, error) {
	providerCode := ""
	var providerErr *ProviderError
	if errors.As(cause, &providerErr) {
		providerCode = providerErr.Code
	}
	failed, _, err := o.transition(ctx, payment, PaymentFailed, source, func(p *Payment) {
		p.FailureReason = cause.Error()
		p.ProviderCode = providerCode
	})
	if err != nil {
		return failed, errors.Join(cause, err)
	}
	return failed, cause
}

func (o *Orchestrator) load(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, &InvalidInputError{Field: "payment_id", Reason: "is required"}
	}
	payment, err := o.payments.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return Payment{}, &UnknownPaymentError{PaymentID: paymentID}
		}
		return Payment{}, err
	}
	return payment, nil
}

func (o *Orchestrator) emit(ctx context.Context, payment Payment, from PaymentState, source string) {
	if o.events == nil {
		return
	}
	event := PaymentStateChange{
		PaymentID:     payment.ID,
		Flow:          payment.Flow,
		From:          from,
		To:            payment.State,
		TransactionNo: payment.TransactionNo,
		Reason:        payment.FailureReason,
		Source:        source,
		OccurredAt:    o.clock.Now(),
	}
	if err := o.events.OnStateChange(ctx, event); err != nil && o.logger != nil {
		o.logger.Warn("payment state change event delivery failed",
			"payment_id", payment.ID,
			"state", string(payment.State),
			"error", err.Error(),
		)
	}
}

func (o *Orchestrator) scheduleReconcile(ctx context.Context, payment Payment, reason string) {
	if o.scheduler == nil {
		return
	}
	err := o.scheduler.ScheduleReconcile(ctx, ReconcileRequest{
		PaymentID: payment.ID,
		Flow:      payment.Flow,
		Reason:    reason,
		NotBefore: o.clock.Now(),
	})
	if err != nil && o.logger != nil {
		o.logger.Error("reconcile scheduling failed",
			"payment_id", payment.ID,
			"error", err.Error(),
		)
	}
}

// revokeStoredToken handles a status poll rejected because the token kept on
// the payment is no longer valid: the token is revoked and dropped so later
// reconciles stop replaying it. cause is always returned.
func (o *Orchestrator) revokeStoredToken(ctx context.Context, payment Payment, cause error) (Payment, error) {
	var providerErr *ProviderError
	if payment.Token == nil || !errors.As(cause, &providerErr) || !o.config.IsInvalidTokenCode(providerErr.Code) {
		return payment, cause
	}
	token := *payment.Token
	_, err := o.client.Call(ctx, EndpointTokenInvalidate, map[string]string{
		ParamDeviceID: payment.DeviceID,
		ParamToken:    token.Value,
	}, token.KIN)
	if err != nil && o.logger != nil {
		o.logger.Warn("stored token revoke failed; dropping it anyway",
			"payment_id", payment.ID,
			"device_id", payment.DeviceID,
			"error", err.Error(),
		)
	}
	cleared, err := o.update(ctx, payment, func(p *Payment) {
		p.Token = nil
	})
	if err != nil {
		return payment, errors.Join(cause, err)
	}
	return cleared, cause
}

func (o *Orchestrator) invalidateIfPoisoned(ctx context.Context, session *TokenManager, err error) {
	var providerErr *ProviderError
	if session == nil || !errors.As(err, &providerErr) || !o.config.IsInvalidTokenCode(providerErr.Code) {
		return
	}
	if invalidateErr := session.Invalidate(ctx); invalidateErr != nil && o.logger != nil {
		o.logger.Warn("token invalidation after provider rejection failed",
			"device_id", session.Device().DeviceID,
			"error", invalidateErr.Error(),
		)
	}
}

// precheckParams runs the signer's validation before any network call.
func (o *Orchestrator) precheckParams(flow Flow, params map[string]string) error {
	_, err := o.client.SignerFor(flow).Canonicalize(params, "")
	return err
}

func checkParams(payment Payment, id string, token Token) map[string]string {
	params := map[string]string{
		ParamDeviceID:      payment.DeviceID,
		ParamToken:         token.Value,
		ParamID:            id,
		ParamAmount:        formatMinor(payment.AmountMinor),
		ParamCurrency:      payment.Currency,
		ParamRecipient:     payment.Recipient.ID,
		ParamRecipientType: string(payment.Recipient.IDType),
		ParamDescription:   payment.Description,
	}
	if payment.Reason != "" {
		params[ParamReason] = payment.Reason
	}
	if len(payment.Visibility) > 0 {
		show := make([]string, 0, len(payment.Visibility))
		for _, flag := range payment.Visibility {
			show = append(show, string(flag))
		}
		params[ParamShow] = strings.Join(show, ",")
	}
	return params
}

func selectInstrument(instruments []PaymentInstrument, requested string) (PaymentInstrument, error) {
	for _, instrument := range instruments {
		if !instrument.Eligible {
			continue
		}
		if requested == "" || instrument.ID == requested {
			return instrument, nil
		}
	}
	if requested != "" {
		return PaymentInstrument{}, &ValidationError{Field: "instrument_id", Expected: requested, Actual: "not eligible"}
	}
	return PaymentInstrument{}, &ValidationError{Field: "payment_instruments", Expected: "an eligible instrument", Actual: "none"}
}

// outcomeUnknown reports whether a failed send may still have moved money.
func outcomeUnknown(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrHTTPStatus)
}

package core

import (
	"context"
	"errors"
)

// Refund returns money for a COMPLETE payment. The provider offers no refund
// idempotency key, so a failed or ambiguous refund is never retried here.
func (o *Orchestrator) Refund(ctx context.Context, req RefundRequest, amountMinor int64) (RefundResult, error) {
	payment, err := o.load(ctx, req.PaymentID)
	if err != nil {
		return RefundResult{}, err
	}
	if payment.State != PaymentComplete {
		return RefundResult{}, &RefundError{PaymentID: payment.ID, Message: "payment is " + string(payment.State) + ", refunds require " + string(PaymentComplete)}
	}
	if remaining := payment.AmountMinor - payment.RefundedMinor(); amountMinor > remaining {
		return RefundResult{}, &RefundError{PaymentID: payment.ID, Message: "amount " + formatMinor(amountMinor) + " exceeds refundable " + formatMinor(remaining)}
	}

	params := map[string]string{
		ParamDeviceID: payment.DeviceID,
		ParamID:       payment.ID,
		ParamAmount:   formatMinor(amountMinor),
		ParamReason:   req.Reason,
	}
	if payment.TransactionNo != "" {
		params[ParamTransactionNo] = payment.TransactionNo
	}
	resp, err := o.client.Call(ctx, EndpointRefund, params, "")
	if err != nil {
		refundErr := &RefundError{PaymentID: payment.ID, Cause: err}
		var providerErr *ProviderError
		if errors.As(err, &providerErr) {
			refundErr.Message = providerErr.Message
		}
		return RefundResult{}, refundErr
	}

	entry := RefundEntry{
		AmountMinor: amountMinor,
		Reason:      req.Reason,
		RefundNo:    resp.String("no"),
		CreatedAt:   o.clock.Now(),
	}
	current := payment
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		updated, updateErr := o.update(ctx, current, func(p *Payment) {
			p.Refunds = append(append([]RefundEntry(nil), p.Refunds...), entry)
		})
		if updateErr == nil {
			return RefundResult{
				PaymentID:     updated.ID,
				AmountMinor:   amountMinor,
				RefundNo:      entry.RefundNo,
				RefundedMinor: updated.RefundedMinor(),
				CreatedAt:     entry.CreatedAt,
			}, nil
		}
		if !errors.Is(updateErr, ErrVersionConflict) {
			err = updateErr
			break
		}
		if current, err = o.load(ctx, payment.ID); err != nil {
			break
		}
		err = updateErr
	}
	// The provider accepted the refund; only the local record failed.
	return RefundResult{
		PaymentID:   payment.ID,
		AmountMinor: amountMinor,
		RefundNo:    entry.RefundNo,
		CreatedAt:   entry.CreatedAt,
	}, err
}

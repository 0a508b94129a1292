package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// StartNoRegPayment records the caller-chosen payment id and returns the
// signed URL of the provider-hosted card page. No money moves here.
func (o *Orchestrator) StartNoRegPayment(ctx context.Context, req StartPaymentRequest, amountMinor int64, currency string) (Payment, string, error) {
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return Payment{}, "", &InvalidInputError{Field: "payment_id", Reason: "is required for the no-registration flow"}
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return Payment{}, "", &InvalidInputError{Field: "device_id", Reason: "is required for the no-registration flow"}
	}

	now := o.clock.Now()
	draft := Payment{
		ID:          paymentID,
		Flow:        FlowNoReg,
		DeviceID:    deviceID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Recipient:   req.Recipient,
		Description: req.Description,
		Reason:      req.Reason,
		Visibility:  append([]Visibility(nil), req.Visibility...),
		SaveCard:    req.SaveCard,
		State:       PaymentCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	redirectURL, err := o.client.SignedURL(EndpointNoRegSend, noRegSendParams(draft, req), "")
	if err != nil {
		return Payment{}, "", err
	}

	created, err := o.payments.Create(ctx, draft)
	if err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			return Payment{}, "", &InvalidInputError{Field: "payment_id", Reason: "is already in use"}
		}
		return Payment{}, "", err
	}
	issued, _, err := o.transition(ctx, created, PaymentRedirectIssued, "noreg_send", nil)
	if err != nil {
		return created, "", err
	}
	return issued, redirectURL, nil
}

func (o *Orchestrator) saveCard(ctx context.Context, payment Payment, resp Response) error {
	if o.cards == nil {
		return &ConfigurationError{Field: "saved_card_store", Reason: "is required when card saving is requested"}
	}
	value := resp.String("token")
	if value == "" {
		if o.logger != nil {
			o.logger.Warn("card saving requested but provider returned no token", "payment_id", payment.ID)
		}
		return nil
	}
	token := Token{
		Value:    value,
		KIN:      resp.String("kin"),
		Username: resp.String("username"),
		RealName: firstNonEmpty(resp.String("realname"), resp.String("real_name")),
	}
	if expires, ok := resp.Int64("expires"); ok && expires > 0 {
		token.ExpiresAt = time.Unix(expires, 0).UTC()
	}
	return o.cards.Save(ctx, SavedCard{
		PaymentID:    payment.ID,
		DeviceID:     payment.DeviceID,
		Token:        token,
		InstrumentID: firstNonEmpty(resp.String("pin"), resp.String("pins")),
		CreatedAt:    o.clock.Now(),
	})
}

func noRegSendParams(payment Payment, req StartPaymentRequest) map[string]string {
	saveCard := "0"
	if payment.SaveCard {
		saveCard = "1"
	}
	params := map[string]string{
		ParamDeviceID:      payment.DeviceID,
		ParamID:            payment.ID,
		ParamAmount:        formatMinor(payment.AmountMinor),
		ParamCurrency:      payment.Currency,
		ParamRecipient:     payment.Recipient.ID,
		ParamRecipientType: string(payment.Recipient.IDType),
		ParamDescription:   payment.Description,
		ParamSaveCard:      saveCard,
	}
	if payment.Reason != "" {
		params[ParamReason] = payment.Reason
	}
	if url := strings.TrimSpace(req.ReturnURL); url != "" {
		params[ParamURLOK] = url
	}
	if url := strings.TrimSpace(req.CancelURL); url != "" {
		params[ParamURLCancel] = url
	}
	return params
}

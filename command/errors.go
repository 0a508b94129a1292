package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-onetouch/core"
)

func missingDependency(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorTextInternal)
}

// invalidMessage reports a rejected command before it reaches the payment
// service. The message type travels as metadata for bus-level logging.
func invalidMessage(messageType string, field string, reason string) error {
	return goerrors.NewValidation("command: invalid "+messageType, goerrors.FieldError{
		Field:   field,
		Message: reason,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorTextInvalidInput).
		WithMetadata(map[string]any{"message_type": messageType})
}

package webhooks

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-onetouch/core"
)

const defaultMaxCallbackBytes = 64 << 10

// Handler exposes a Processor as the provider-facing callback endpoint. It
// accepts GET query strings and POST form bodies.
type Handler struct {
	Processor *Processor
	MaxBytes  int64
}

func NewHandler(processor *Processor) *Handler {
	return &Handler{Processor: processor, MaxBytes: defaultMaxCallbackBytes}
}

type callbackResponse struct {
	PaymentID string `json:"payment_id,omitempty"`
	State     string `json:"state,omitempty"`
	Changed   bool   `json:"changed"`
	Deduped   bool   `json:"deduped,omitempty"`
}

type errorResponse struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Error:    "method not allowed",
			TextCode: core.ErrorTextInvalidInput,
		})
		return
	}
	if h == nil || h.Processor == nil {
		writeError(w, &core.ConfigurationError{Field: "webhooks", Reason: "handler has no processor"})
		return
	}

	limit := h.MaxBytes
	if limit <= 0 {
		limit = defaultMaxCallbackBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseForm(); err != nil {
		writeError(w, &core.InvalidInputError{Field: "body", Reason: "unreadable callback form"})
		return
	}

	// Values stay as delivered; the verifier signs them byte for byte.
	params := make(map[string]string, len(r.Form))
	for key, values := range r.Form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	result, err := h.Processor.Process(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callbackResponse{
		PaymentID: result.PaymentID,
		State:     string(result.State),
		Changed:   result.Changed,
		Deduped:   result.Deduped,
	})
}

func writeError(w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := mapped.Message
	if mapped.Category == goerrors.CategoryInternal {
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message, TextCode: mapped.TextCode})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wakala/payments/internal/domain"
	"github.com/wakala/payments/internal/idempotency"
	"github.com/wakala/payments/internal/orchestrator"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxBodyBytes = 1 << 16
)

// Payments is what the handlers need from the orchestrator.
type Payments interface {
	Pay(ctx context.Context, key domain.IdempotencyKey, card domain.CardID, amount domain.Money) (idempotency.Result, error)
	Lookup(ctx context.Context, key domain.IdempotencyKey) (*domain.Outcome, error)
	PendingReconciliation(ctx context.Context) ([]idempotency.Entry, error)
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	payments Payments
}

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// outcomeStatus maps an outcome to its HTTP status. Aborts surface the
// upstream code; anything that is not an error code becomes 502.
func outcomeStatus(o *domain.Outcome) int {
	switch {
	case o.Status != domain.OutcomeError:
		return http.StatusOK
	case o.Reason == domain.ReasonSettlementTimeout:
		return http.StatusGatewayTimeout
	case o.StatusCode >= 400 && o.StatusCode <= 599:
		return o.StatusCode
	default:
		return http.StatusBadGateway
	}
}

type paymentRequest struct {
	Amount json.RawMessage `json:"amount"`
}

func parsePaymentRequest(r *http.Request) (domain.CardID, domain.Money, error) {
	card, err := domain.ParseCardID(chi.URLParam(r, "cardId"))
	if err != nil {
		return 0, 0, &ValidationError{Field: "card_id", Msg: "must be an integer"}
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return 0, 0, &ValidationError{Field: "body", Msg: err.Error()}
	}
	var req paymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return 0, 0, &ValidationError{Field: "body", Msg: "invalid JSON"}
	}
	if len(req.Amount) == 0 || string(req.Amount) == "null" {
		return 0, 0, &ValidationError{Field: "amount", Msg: "is required"}
	}
	var amount domain.Money
	if err := json.Unmarshal(req.Amount, &amount); err != nil {
		return 0, 0, &ValidationError{Field: "amount", Msg: "must be an integer"}
	}
	if err := amount.Validate(); err != nil {
		return 0, 0, &ValidationError{Field: "amount", Msg: "must be greater than 0"}
	}
	return card, amount, nil
}

// --- CreatePayment ---

func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	card, amount, err := parsePaymentRequest(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	key := domain.IdempotencyKey(r.Header.Get(HeaderIdempotencyKey))
	if key == "" {
		key = domain.IdempotencyKey(uuid.NewString())
	}
	if err := key.Validate(); err != nil {
		verr := &ValidationError{Field: "idempotency_key", Msg: fmt.Sprintf("must be at most %d bytes", domain.MaxIdempotencyKeyLen)}
		writeError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	w.Header().Set(HeaderIdempotencyKey, string(key))

	res, err := h.payments.Pay(r.Context(), key, card, amount)
	switch {
	case errors.Is(err, orchestrator.ErrKeyReused):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidKey):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		log.Printf("[api] payment %s failed: %v", key, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	writeJSON(w, outcomeStatus(res.Outcome), res.Outcome)
}

// --- GetPayment ---

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	key := domain.IdempotencyKey(chi.URLParam(r, "key"))

	o, err := h.payments.Lookup(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "no outcome for idempotency key")
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// --- ListReconciliation ---

func (h *Handlers) ListReconciliation(w http.ResponseWriter, r *http.Request) {
	entries, err := h.payments.PendingReconciliation(r.Context())
	if errors.Is(err, idempotency.ErrListingUnsupported) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

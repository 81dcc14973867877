package domain

import "time"

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeError   OutcomeStatus = "error"
)

// AbortReason names the step at which an orchestration stopped.
type AbortReason string

const (
	ReasonHoldFailure        AbortReason = "hold_failure"
	ReasonPaymentFailure     AbortReason = "payment_failure"
	ReasonStatusCheckFailure AbortReason = "status_check_failure"
	ReasonSettlementTimeout  AbortReason = "settlement_timeout"
	ReasonCaptureFailure     AbortReason = "capture_failure"
)

// Outcome is the durable result of one orchestration run. Exactly one
// Outcome is stored per IdempotencyKey.
//
// Status success carries hold, payment and capture. Status failed means the
// payment did not settle and the hold was left uncaptured. Status error
// carries Reason, the upstream StatusCode (zero for a settlement timeout) and
// Detail, plus whichever records were obtained before the abort.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	CardID  CardID        `json:"card_id"`
	Amount  Money         `json:"amount"`
	Hold    *Hold         `json:"hold,omitempty"`
	Payment *Payment      `json:"payment,omitempty"`
	Capture *Capture      `json:"capture,omitempty"`

	Reason              AbortReason `json:"reason,omitempty"`
	StatusCode          int         `json:"status_code,omitempty"`
	Detail              string      `json:"detail,omitempty"`
	NeedsReconciliation bool        `json:"needs_reconciliation,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}

func (o *Outcome) Aborted() bool {
	return o.Status == OutcomeError
}

// Matches reports whether the outcome was produced for the given request.
func (o *Outcome) Matches(card CardID, amount Money) bool {
	return o.CardID == card && o.Amount == amount
}

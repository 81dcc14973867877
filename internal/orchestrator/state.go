package orchestrator

// State is a step of a single orchestration run.
type State string

const (
	StateIdle            State = "idle"
	StateHoldPending     State = "hold_pending"
	StateHoldPlaced      State = "hold_placed"
	StatePaymentPending  State = "payment_pending"
	StatePaymentSettling State = "payment_settling"

	StateSuccess          State = "success"
	StateSettlementFailed State = "settlement_failed"
	StateAborted          State = "aborted"
)

func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateSettlementFailed, StateAborted:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateIdle:            {StateHoldPending},
	StateHoldPending:     {StateHoldPlaced, StateAborted},
	StateHoldPlaced:      {StatePaymentPending},
	StatePaymentPending:  {StatePaymentSettling, StateAborted},
	StatePaymentSettling: {StateSuccess, StateSettlementFailed, StateAborted},
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

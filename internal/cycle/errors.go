package cycle

import (
	"encoding/json"
	"fmt"
)

// Phase identifies a step of a cycle.
type Phase string

// Cycle phases in execution order.
const (
	PhaseFetch     Phase = "fetch"
	PhaseReconcile Phase = "reconcile"
	PhaseGate      Phase = "gate"
	PhaseNotify    Phase = "notify"
	PhasePersist   Phase = "persist"
)

// Report kinds sent to the operator channel.
const (
	KindFetch      = "FetchError"
	KindReconcile  = "ReconcileError"
	KindNotify     = "NotifyError"
	KindPersist    = "PersistError"
	KindTruncation = "TruncationWarning"
)

// PhaseError is a failure that ended a cycle in the given phase.
type PhaseError struct {
	Phase Phase
	Msg   string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("cycle: %s: %s: %v", e.Phase, e.Msg, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Kind returns the report kind for the failed phase.
func (e *PhaseError) Kind() string {
	switch e.Phase {
	case PhaseFetch:
		return KindFetch
	case PhaseReconcile:
		return KindReconcile
	case PhaseNotify:
		return KindNotify
	case PhasePersist:
		return KindPersist
	default:
		return "CycleError"
	}
}

// MarshalJSON renders the failure for the status API.
func (e *PhaseError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(struct {
		Phase   Phase  `json:"phase"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}{e.Phase, e.Kind(), e.Msg, cause})
}

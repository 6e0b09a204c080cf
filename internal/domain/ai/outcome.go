package ai

import "time"

// OutcomeStatus enum
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the result of one provider call. Providers never surface errors
// past the orchestrator; every call ends up as one of the three states.
type Outcome[T any] struct {
	Status    OutcomeStatus `json:"status"`
	Payload   *T            `json:"payload,omitempty"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Reason    string        `json:"reason,omitempty"`
}

func Succeeded[T any](payload *T, elapsed time.Duration) Outcome[T] {
	return Outcome[T]{Status: OutcomeSuccess, Payload: payload, ElapsedMS: elapsed.Milliseconds()}
}

func Failed[T any](reason string, elapsed time.Duration) Outcome[T] {
	return Outcome[T]{Status: OutcomeFailed, Reason: reason, ElapsedMS: elapsed.Milliseconds()}
}

func Skipped[T any](reason string) Outcome[T] {
	return Outcome[T]{Status: OutcomeSkipped, Reason: reason}
}

// OK reports a success carrying a payload.
func (o Outcome[T]) OK() bool {
	return o.Status == OutcomeSuccess && o.Payload != nil
}

// Value returns the payload only for successful outcomes.
func (o Outcome[T]) Value() (*T, bool) {
	if !o.OK() {
		return nil, false
	}
	return o.Payload, true
}

// FailureReason returns the reason of a Failed outcome, empty otherwise.
func (o Outcome[T]) FailureReason() string {
	if o.Status != OutcomeFailed {
		return ""
	}
	return o.Reason
}

package agent

import "fmt"

// Phase is a state of the chat turn state machine.
type Phase string

const (
	PhaseRetrieving     Phase = "retrieving"
	PhaseComposing      Phase = "composing"
	PhaseModelRoundTrip Phase = "model_round_trip"
	PhaseToolInvocation Phase = "tool_invocation"
	PhaseContinuation   Phase = "continuation"
	PhaseFinal          Phase = "final"
)

// TurnError reports where a chat turn failed. The cause keeps its error
// kind, so errors.Is against the errdefs sentinels works through it.
type TurnError struct {
	SessionID string
	Phase     Phase

	// Round is the number of model round trips completed before the
	// failure.
	Round int

	Cause error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("chat turn %s failed at %s (round %d): %v", e.SessionID, e.Phase, e.Round, e.Cause)
}

func (e *TurnError) Unwrap() error {
	return e.Cause
}

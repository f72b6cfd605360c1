package telephony

import (
	"context"
)

// Provider is the provider-agnostic outbound dialing capability.
//
// Rules:
//   - No provider SDK calls outside telephony adapters.
//   - PlaceCall is fire-and-forget: it returns once the dial is handed to the
//     provider, and the terminal status arrives later through OnResult.
//     The caller must not hold locks across either boundary.
//   - OnResult is invoked exactly once per placed call, from a separate
//     goroutine, with the terminal status.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	PlaceCall(ctx context.Context, req PlaceCallRequest) error
}

// PlaceCallRequest asks the provider to dial To, presenting From as the
// caller ID. CallID is the engine's attempt identifier, echoed back by the
// provider's status callback to correlate the result.
type PlaceCallRequest struct {
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`

	// OnResult receives the terminal status. Never nil.
	OnResult ResultFunc `json:"-"`
}

type ResultFunc func(CallResult)

// CallResult is the provider-agnostic terminal status of one dial.
type CallResult struct {
	Status CallStatus `json:"status"`

	// DurationSeconds is meaningful only for answered/completed.
	DurationSeconds int `json:"duration_seconds,omitempty"`

	// ProviderDetails is an opaque error/reason string, stored verbatim.
	ProviderDetails string `json:"provider_details,omitempty"`
}

type CallStatus string

const (
	CallStatusAnswered  CallStatus = "answered"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
	CallStatusNoAnswer  CallStatus = "no-answer"
	CallStatusBusy      CallStatus = "busy"
	CallStatusCanceled  CallStatus = "canceled"
)

// ParseCallStatus normalizes provider status strings, mapping common
// carrier vocabulary onto the engine's terminal statuses. Unknown values
// map to failed so a misbehaving provider cannot wedge an attempt open.
func ParseCallStatus(s string) CallStatus {
	switch s {
	case "answered", "in-progress":
		return CallStatusAnswered
	case "completed":
		return CallStatusCompleted
	case "busy":
		return CallStatusBusy
	case "no-answer", "noanswer":
		return CallStatusNoAnswer
	case "canceled", "cancelled":
		return CallStatusCanceled
	default:
		return CallStatusFailed
	}
}

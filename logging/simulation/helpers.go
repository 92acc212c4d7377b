package simulation

import (
	"context"

	"decharge/gateway/logging"
)

const (
	// EventProduced is emitted when the simulator's event was accepted.
	EventProduced logging.EventType = "simulation.produced"
	// EventProduceFailed is emitted when the gateway refused a simulated event.
	EventProduceFailed logging.EventType = "simulation.produce_failed"
)

// ProducedPayload describes one simulated ingestion call.
type ProducedPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// ProduceFailedPayload captures the gateway's refusal.
type ProduceFailedPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Produced publishes an info event for an accepted simulated event.
func Produced(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ProducedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventProduced,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ProduceFailed publishes a warning when a simulated event was refused.
func ProduceFailed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ProduceFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventProduceFailed,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

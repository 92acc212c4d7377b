package ingestion

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"decharge/gateway/logging"
)

const (
	// EventAccepted is emitted when an ingestion call mutates state and broadcasts.
	EventAccepted logging.EventType = "ingestion.accepted"
	// EventRejected is emitted when an ingestion call fails validation or lookup.
	EventRejected logging.EventType = "ingestion.rejected"
)

// AcceptedPayload describes an applied ingestion event.
type AcceptedPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

// RejectedPayload describes why an ingestion call made no change.
type RejectedPayload struct {
	Type   string   `json:"type,omitempty"`
	Reason string   `json:"reason"`
	Fields []string `json:"fields,omitempty"`
}

// Accepted publishes an info event for an applied ingestion call.
func Accepted(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AcceptedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:      EventAccepted,
		Actor:     actor,
		Severity:  logging.SeverityInfo,
		Category:  logging.CategoryIngestion,
		Payload:   payload,
		Extra:     extra,
		TraceID:   traceID(ctx),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}

// Rejected publishes a warning for a refused ingestion call.
func Rejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload RejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:      EventRejected,
		Actor:     actor,
		Severity:  logging.SeverityWarn,
		Category:  logging.CategoryIngestion,
		Payload:   payload,
		Extra:     extra,
		TraceID:   traceID(ctx),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

package network

import (
	"context"

	"decharge/gateway/logging"
)

const (
	// EventStreamLive is emitted when a viewer receives a bootstrap frame.
	EventStreamLive logging.EventType = "network.stream_live"
	// EventStreamInterrupted is emitted when a viewer's stream connection fails.
	EventStreamInterrupted logging.EventType = "network.stream_interrupted"
	// EventFrameDiscarded is emitted when a viewer cannot decode a stream frame.
	EventFrameDiscarded logging.EventType = "network.frame_discarded"
	// EventHydrationDiscarded is emitted when REST reads lose to a stream bootstrap.
	EventHydrationDiscarded logging.EventType = "network.hydration_discarded"
)

// StreamPayload describes one stream connection attempt.
type StreamPayload struct {
	URL     string `json:"url"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
	RetryMs int64  `json:"retryMs,omitempty"`
}

// FramePayload describes an undecodable frame.
type FramePayload struct {
	Type  string `json:"type,omitempty"`
	Error string `json:"error"`
}

// StreamLive publishes an info event when a stream connection turns live.
func StreamLive(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload StreamPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventStreamLive,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// StreamInterrupted publishes a warning when a stream connection fails.
func StreamInterrupted(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload StreamPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventStreamInterrupted,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FrameDiscarded publishes a warning for a frame the viewer skipped.
func FrameDiscarded(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload FramePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFrameDiscarded,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// HydrationDiscarded publishes a debug event for superseded REST reads.
func HydrationDiscarded(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventHydrationDiscarded,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

package lifecycle

import (
	"context"

	"decharge/gateway/logging"
)

const (
	// EventGatewayStarted is emitted once the gateway is accepting connections.
	EventGatewayStarted logging.EventType = "lifecycle.gateway_started"
	// EventGatewayStopped is emitted when the gateway has shut down.
	EventGatewayStopped logging.EventType = "lifecycle.gateway_stopped"
)

// StartedPayload captures what the gateway is serving.
type StartedPayload struct {
	Addr         string   `json:"addr"`
	CatalogItems int      `json:"catalogItems"`
	Sinks        []string `json:"sinks,omitempty"`
}

// StoppedPayload captures the reason the gateway stopped.
type StoppedPayload struct {
	Reason string `json:"reason"`
}

func GatewayStarted(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload StartedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventGatewayStarted,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

func GatewayStopped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload StoppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventGatewayStopped,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

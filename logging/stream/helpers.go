package stream

import (
	"context"

	"decharge/gateway/logging"
)

const (
	// EventSubscriberJoined is emitted when a viewer connection is registered.
	EventSubscriberJoined logging.EventType = "stream.subscriber_joined"
	// EventSubscriberDropped is emitted when a viewer connection is deregistered.
	EventSubscriberDropped logging.EventType = "stream.subscriber_dropped"
	// EventFeedDelivered is emitted by the activity feed for every mirrored live event.
	EventFeedDelivered logging.EventType = "stream.feed_delivered"
)

type SubscriberPayload struct {
	Subscribers int    `json:"subscribers"`
	Reason      string `json:"reason,omitempty"`
}

type FeedPayload struct {
	EventType string `json:"eventType"`
	Bytes     int    `json:"bytes"`
	MessageID string `json:"messageId"`
}

// SubscriberJoined publishes a join event for a viewer.
func SubscriberJoined(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SubscriberPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSubscriberJoined,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryStream,
		Payload:  payload,
	})
}

// SubscriberDropped publishes a departure. Client-initiated closes are info;
// anything else is a warning.
func SubscriberDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SubscriberPayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityWarn
	if payload.Reason == "closed" {
		severity = logging.SeverityInfo
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSubscriberDropped,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryStream,
		Payload:  payload,
	})
}

// FeedDelivered publishes a debug event for one activity-feed message.
func FeedDelivered(ctx context.Context, pub logging.Publisher, payload FeedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFeedDelivered,
		Actor:    logging.EntityRef{Kind: logging.EntityKindUnknown},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryStream,
		Payload:  payload,
	})
}

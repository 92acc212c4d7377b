package economy

import (
	"context"

	"decharge/gateway/logging"
)

const (
	// EventPurchaseRecorded is emitted for every applied points purchase.
	EventPurchaseRecorded logging.EventType = "economy.purchase_recorded"
	// EventItemSoldOut is emitted when a purchase leaves an item without stock.
	EventItemSoldOut logging.EventType = "economy.item_sold_out"
)

// PurchasePayload describes an applied redemption.
type PurchasePayload struct {
	Wallet    string  `json:"wallet"`
	Points    float64 `json:"points"`
	Remaining int     `json:"remaining"`
	// Decremented is false when the item was already out of stock.
	Decremented bool `json:"decremented"`
}

// SoldOutPayload names the purchase that exhausted the stock.
type SoldOutPayload struct {
	Wallet string `json:"wallet"`
}

// PurchaseRecorded publishes an info event for a points purchase.
func PurchaseRecorded(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PurchasePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:      EventPurchaseRecorded,
		Actor:     actor,
		Severity:  logging.SeverityInfo,
		Category:  logging.CategoryEconomy,
		Payload:   payload,
		Extra:     extra,
		RequestID: logging.RequestIDFromContext(ctx),
	}
	pub.Publish(ctx, event)
}

// ItemSoldOut publishes a warning once an item's inventory reaches zero.
func ItemSoldOut(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SoldOutPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:      EventItemSoldOut,
		Actor:     actor,
		Severity:  logging.SeverityWarn,
		Category:  logging.CategoryEconomy,
		Payload:   payload,
		Extra:     extra,
		RequestID: logging.RequestIDFromContext(ctx),
	}
	pub.Publish(ctx, event)
}

package intake

import (
	"context"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
)

// Result is what a successful command reports back to the producer.
type Result struct {
	SessionID string
}

// Handler applies validated commands. It has one method per command variant,
// so an implementation that forgets a variant does not compile.
type Handler interface {
	HandleSessionStart(context.Context, SessionStart) (Result, error)
	HandleSessionUpdate(context.Context, SessionUpdate) (Result, error)
	HandleSessionComplete(context.Context, SessionComplete) (Result, error)
	HandleStationStatus(context.Context, StationStatus) (Result, error)
	HandlePointsPurchase(context.Context, PointsPurchase) (Result, error)
	HandleWorldPlotClaim(context.Context, WorldPlotClaim) (Result, error)
}

// Command is a validated, normalized ingestion event.
type Command interface {
	Type() proto.Type
	Accept(ctx context.Context, h Handler) (Result, error)
}

type SessionStart struct {
	StationID          string
	Driver             string
	VehicleModel       string
	EnergyDeliveredKwh float64
	PointsEarned       float64
	Timestamp          int64
}

// SessionUpdate carries optional energy and points; nil keeps the stored value.
type SessionUpdate struct {
	SessionID          string
	StationID          string
	EnergyDeliveredKwh *float64
	PointsEarned       *float64
	Status             model.SessionStatus
	Timestamp          int64
}

type SessionComplete struct {
	SessionID          string
	StationID          string
	EnergyDeliveredKwh *float64
	PointsEarned       *float64
	Timestamp          int64
}

// StationStatus overwrites the station status. Nil metrics keep the stored value.
type StationStatus struct {
	StationID          string
	Status             model.StationStatus
	LivePowerKw        *float64
	DailyEnergyKwh     *float64
	UtilizationPercent *float64
	CarbonOffsetKg     *float64
	Timestamp          int64
}

type PointsPurchase struct {
	ItemID    string
	Wallet    string
	Points    float64
	Timestamp int64
}

// WorldPlotClaim replaces a plot wholesale. Coordinates, PowerScore and Vibe
// are assigned by the server when left unset.
type WorldPlotClaim struct {
	RegionKey   string
	Wallet      string
	Boosts      []model.Boost
	Coordinates *[3]float64
	PowerScore  *float64
	Vibe        model.Vibe
	Timestamp   int64
}

func (SessionStart) Type() proto.Type    { return proto.TypeSessionStart }
func (SessionUpdate) Type() proto.Type   { return proto.TypeSessionUpdate }
func (SessionComplete) Type() proto.Type { return proto.TypeSessionComplete }
func (StationStatus) Type() proto.Type   { return proto.TypeStationStatus }
func (PointsPurchase) Type() proto.Type  { return proto.TypePointsPurchase }
func (WorldPlotClaim) Type() proto.Type  { return proto.TypeWorldPlotClaim }

func (c SessionStart) Accept(ctx context.Context, h Handler) (Result, error) {
	return h.HandleSessionStart(ctx, c)
}

func (c SessionUpdate) Accept(ctx context.Context, h Handler) (Result, error) {
	return h.HandleSessionUpdate(ctx, c)
}

func (c SessionComplete) Accept(ctx context.Context, h Handler) (Result, error) {
	return h.HandleSessionComplete(ctx, c)
}

func (c StationStatus) Accept(ctx context.Context, h Handler) (Result, error) {
	return h.HandleStationStatus(ctx, c)
}

func (c PointsPurchase) Accept(ctx context.Context, h Handler) (Result, error) {
	return h.HandlePointsPurchase(ctx, c)
}

func (c WorldPlotClaim) Accept(ctx context.Context, h Handler) (Result, error) {
	return h.HandleWorldPlotClaim(ctx, c)
}

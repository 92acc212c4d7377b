package intake

import (
	"decharge/gateway/internal/net/proto"
)

// Wire shapes of POST /ingest bodies. Every body is a flat JSON object whose
// "type" field selects one of these. Pointer fields are optional. Timestamps
// are epoch milliseconds; fractional values are truncated.

type SessionStartPayload struct {
	Type               string   `json:"type" jsonschema:"enum=session_start"`
	StationID          string   `json:"stationId" validate:"required"`
	Driver             string   `json:"driver,omitempty"`
	VehicleModel       string   `json:"vehicleModel,omitempty"`
	EnergyDeliveredKwh *float64 `json:"energyDeliveredKwh,omitempty" validate:"omitempty,gte=0"`
	PointsEarned       *float64 `json:"pointsEarned,omitempty" validate:"omitempty,gte=0"`
	Timestamp          *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type SessionUpdatePayload struct {
	Type               string   `json:"type" jsonschema:"enum=session_update"`
	SessionID          string   `json:"sessionId" validate:"required"`
	StationID          string   `json:"stationId,omitempty"`
	EnergyDeliveredKwh *float64 `json:"energyDeliveredKwh,omitempty" validate:"omitempty,gte=0"`
	PointsEarned       *float64 `json:"pointsEarned,omitempty" validate:"omitempty,gte=0"`
	Status             string   `json:"status,omitempty" validate:"omitempty,oneof=charging completed aborted" jsonschema:"enum=charging,enum=completed,enum=aborted"`
	Timestamp          *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type SessionCompletePayload struct {
	Type               string   `json:"type" jsonschema:"enum=session_complete"`
	SessionID          string   `json:"sessionId" validate:"required"`
	StationID          string   `json:"stationId,omitempty"`
	EnergyDeliveredKwh *float64 `json:"energyDeliveredKwh,omitempty" validate:"omitempty,gte=0"`
	PointsEarned       *float64 `json:"pointsEarned,omitempty" validate:"omitempty,gte=0"`
	Timestamp          *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type StationStatusPayload struct {
	Type               string   `json:"type" jsonschema:"enum=station_status"`
	StationID          string   `json:"stationId" validate:"required"`
	Status             string   `json:"status" validate:"required,oneof=online offline maintenance" jsonschema:"enum=online,enum=offline,enum=maintenance"`
	LivePowerKw        *float64 `json:"livePowerKw,omitempty" validate:"omitempty,gte=0"`
	DailyEnergyKwh     *float64 `json:"dailyEnergyKwh,omitempty" validate:"omitempty,gte=0"`
	UtilizationPercent *float64 `json:"utilizationPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	CarbonOffsetKg     *float64 `json:"carbonOffsetKg,omitempty" validate:"omitempty,gte=0"`
	Timestamp          *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type PointsPurchasePayload struct {
	Type      string   `json:"type" jsonschema:"enum=points_purchase"`
	ItemID    string   `json:"itemId" validate:"required"`
	Wallet    string   `json:"wallet" validate:"required"`
	Points    float64  `json:"points" validate:"gt=0"`
	Timestamp *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

type BoostPayload struct {
	Label     string   `json:"label" validate:"required"`
	Magnitude *float64 `json:"magnitude" validate:"required"`
}

type WorldPlotClaimPayload struct {
	Type        string         `json:"type" jsonschema:"enum=world_plot_claim"`
	RegionKey   string         `json:"regionKey" validate:"required"`
	Wallet      string         `json:"wallet,omitempty"`
	Boosts      []BoostPayload `json:"boosts,omitempty" validate:"omitempty,dive"`
	Coordinates []float64      `json:"coordinates,omitempty" validate:"omitempty,len=3"`
	PowerScore  *float64       `json:"powerScore,omitempty" validate:"omitempty,gte=0"`
	Vibe        string         `json:"vibe,omitempty" validate:"omitempty,oneof=eco tech community" jsonschema:"enum=eco,enum=tech,enum=community"`
	Timestamp   *float64       `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

// Kind pairs an ingestion type tag with an empty instance of its body.
type Kind struct {
	Type    proto.Type
	Payload any
}

// Kinds lists every ingestion body in wire order.
func Kinds() []Kind {
	return []Kind{
		{proto.TypeSessionStart, &SessionStartPayload{}},
		{proto.TypeSessionUpdate, &SessionUpdatePayload{}},
		{proto.TypeSessionComplete, &SessionCompletePayload{}},
		{proto.TypeStationStatus, &StationStatusPayload{}},
		{proto.TypePointsPurchase, &PointsPurchasePayload{}},
		{proto.TypeWorldPlotClaim, &WorldPlotClaimPayload{}},
	}
}

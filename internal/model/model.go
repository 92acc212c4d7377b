// Package model defines the entities tracked by the gateway: charging
// stations, charging sessions, marketplace items and world plots, plus the
// purchase receipt and the derived dashboard aggregate.
//
// All timestamps are Unix milliseconds. Values are plain data; callers copy
// them through Clone before handing them across goroutines.
package model

// StationStatus is the operational state of a station.
type StationStatus string

const (
	StationOnline      StationStatus = "online"
	StationOffline     StationStatus = "offline"
	StationMaintenance StationStatus = "maintenance"
)

// SessionStatus is the lifecycle state of a charging session.
type SessionStatus string

const (
	SessionCharging  SessionStatus = "charging"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

// Terminal reports whether the session can no longer change.
func (s SessionStatus) Terminal() bool {
	return s != SessionCharging
}

// ItemCategory groups marketplace items.
type ItemCategory string

const (
	CategoryEnergy   ItemCategory = "energy"
	CategoryMobility ItemCategory = "mobility"
	CategoryPerks    ItemCategory = "perks"
)

// DeliveryType describes how a redeemed item reaches the buyer.
type DeliveryType string

const (
	DeliveryDigital  DeliveryType = "digital"
	DeliveryPhysical DeliveryType = "physical"
	DeliveryOnChain  DeliveryType = "on-chain"
)

// Vibe is the flavour of a world plot.
type Vibe string

const (
	VibeEco       Vibe = "eco"
	VibeTech      Vibe = "tech"
	VibeCommunity Vibe = "community"
)

// Vibes lists every vibe in a stable order.
var Vibes = []Vibe{VibeEco, VibeTech, VibeCommunity}

type Location struct {
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Station is a physical or simulated charger.
type Station struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Location           Location      `json:"location"`
	Connectors         []string      `json:"connectors"`
	Status             StationStatus `json:"status"`
	LivePowerKw        float64       `json:"livePowerKw"`
	DailyEnergyKwh     float64       `json:"dailyEnergyKwh"`
	UtilizationPercent float64       `json:"utilizationPercent"`
	CarbonOffsetKg     float64       `json:"carbonOffsetKg"`
	ActiveSessionID    string        `json:"activeSessionId,omitempty"`
}

// Clone returns a deep copy of the station.
func (s Station) Clone() Station {
	cloned := s
	if s.Connectors != nil {
		cloned.Connectors = append([]string(nil), s.Connectors...)
	}
	return cloned
}

// Session is one charging session at a station.
type Session struct {
	ID                 string        `json:"id"`
	StationID          string        `json:"stationId"`
	Driver             string        `json:"driver"`
	VehicleModel       string        `json:"vehicleModel"`
	StartedAt          int64         `json:"startedAt"`
	UpdatedAt          int64         `json:"updatedAt"`
	EndedAt            *int64        `json:"endedAt,omitempty"`
	EnergyDeliveredKwh float64       `json:"energyDeliveredKwh"`
	PointsEarned       float64       `json:"pointsEarned"`
	Status             SessionStatus `json:"status"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	cloned := s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		cloned.EndedAt = &ended
	}
	return cloned
}

// MarketplaceItem is a redeemable reward priced in points.
type MarketplaceItem struct {
	ID             string       `json:"id" yaml:"id"`
	Title          string       `json:"title" yaml:"title"`
	Category       ItemCategory `json:"category" yaml:"category"`
	Description    string       `json:"description" yaml:"description"`
	PointsCost     float64      `json:"pointsCost" yaml:"pointsCost"`
	CashPriceUsd   float64      `json:"cashPriceUsd" yaml:"cashPriceUsd"`
	SavingsPercent float64      `json:"savingsPercent" yaml:"savingsPercent"`
	DeliveryType   DeliveryType `json:"deliveryType" yaml:"deliveryType"`
	Inventory      int          `json:"inventory" yaml:"inventory"`
}

type Boost struct {
	Label     string  `json:"label"`
	Magnitude float64 `json:"magnitude"`
}

// WorldPlot is a claimed region of the virtual world, keyed by RegionKey.
type WorldPlot struct {
	RegionKey   string     `json:"regionKey"`
	Coordinates [3]float64 `json:"coordinates"`
	Owner       string     `json:"owner,omitempty"`
	PowerScore  float64    `json:"powerScore"`
	Vibe        Vibe       `json:"vibe"`
	Boosts      []Boost    `json:"boosts"`
}

// Clone returns a deep copy of the plot. A nil boost list becomes empty so
// the wire form is always an array.
func (p WorldPlot) Clone() WorldPlot {
	cloned := p
	cloned.Boosts = append([]Boost{}, p.Boosts...)
	return cloned
}

// PurchaseReceipt is the payload of a points redemption.
type PurchaseReceipt struct {
	ItemID             string  `json:"itemId"`
	Wallet             string  `json:"wallet"`
	Points             float64 `json:"points"`
	Timestamp          int64   `json:"timestamp"`
	RemainingInventory *int    `json:"remainingInventory,omitempty"`
}

// Clone returns a deep copy of the receipt.
func (r PurchaseReceipt) Clone() PurchaseReceipt {
	cloned := r
	if r.RemainingInventory != nil {
		remaining := *r.RemainingInventory
		cloned.RemainingInventory = &remaining
	}
	return cloned
}

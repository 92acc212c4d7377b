package model

// Dashboard is the derived network, session, economy and world summary.
type Dashboard struct {
	Network  NetworkSummary `json:"network"`
	Sessions SessionSummary `json:"sessions"`
	Economy  EconomySummary `json:"economy"`
	World    WorldSummary   `json:"world"`
}

type NetworkSummary struct {
	StationCount          int     `json:"stationCount"`
	OnlineStations        int     `json:"onlineStations"`
	EnergyDeliveredKwh    float64 `json:"energyDeliveredKwh"`
	CarbonOffsetKg        float64 `json:"carbonOffsetKg"`
	AvgUtilizationPercent float64 `json:"avgUtilizationPercent"`
}

type SessionSummary struct {
	Active int       `json:"active"`
	Recent []Session `json:"recent"`
}

type EconomySummary struct {
	TotalPointsIssued    float64 `json:"totalPointsIssued"`
	MarketplaceInventory int     `json:"marketplaceInventory"`
}

type WorldSummary struct {
	PlotsClaimed int `json:"plotsClaimed"`
}

// Clone returns a deep copy of the aggregate.
func (d Dashboard) Clone() Dashboard {
	cloned := d
	cloned.Sessions.Recent = make([]Session, 0, len(d.Sessions.Recent))
	for _, session := range d.Sessions.Recent {
		cloned.Sessions.Recent = append(cloned.Sessions.Recent, session.Clone())
	}
	return cloned
}

// Package bootstrap derives read models from a consistent store view: the
// full-state snapshot sent to new subscribers and the dashboard aggregate.
package bootstrap

import (
	"github.com/shopspring/decimal"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/store"
)

// RecentSessionCount is how many sessions the dashboard lists.
const RecentSessionCount = 10

// Build returns the bootstrap event for the state visible through r.
func Build(r store.Reader) proto.Bootstrap {
	dashboard := Dashboard(r)
	return proto.Bootstrap{Payload: proto.Snapshot{
		Stations:     r.Stations(),
		Sessions:     r.Sessions(),
		Marketplace:  r.Marketplace(),
		World:        r.World(),
		RecentEvents: proto.EventList(r.RecentEvents(0)),
		Dashboard:    &dashboard,
	}}
}

// Dashboard computes the network, session, economy and world summaries.
func Dashboard(r store.Reader) model.Dashboard {
	stations := r.Stations()
	sessions := r.Sessions()

	var (
		network     model.NetworkSummary
		utilization = decimal.Zero
		active      int
		points      float64
	)
	network.StationCount = len(stations)
	for _, station := range stations {
		if station.Status == model.StationOnline {
			network.OnlineStations++
		}
		network.CarbonOffsetKg += station.CarbonOffsetKg
		utilization = utilization.Add(decimal.NewFromFloat(station.UtilizationPercent))
	}
	for _, session := range sessions {
		if session.Status == model.SessionCharging {
			active++
		}
		network.EnergyDeliveredKwh += session.EnergyDeliveredKwh
		points += session.PointsEarned
	}
	if len(stations) > 0 {
		avg, _ := utilization.Div(decimal.NewFromInt(int64(len(stations)))).Round(1).Float64()
		network.AvgUtilizationPercent = avg
	}

	inventory := 0
	for _, item := range r.Marketplace() {
		inventory += item.Inventory
	}

	recent := r.RecentSessions(RecentSessionCount)
	return model.Dashboard{
		Network:  network,
		Sessions: model.SessionSummary{Active: active, Recent: recent},
		Economy:  model.EconomySummary{TotalPointsIssued: points, MarketplaceInventory: inventory},
		World:    model.WorldSummary{PlotsClaimed: len(r.World())},
	}
}

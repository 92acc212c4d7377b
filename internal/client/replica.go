package client

import (
	"slices"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
)

// MaxEvents bounds the replica's recent-event log.
const MaxEvents = 200

// View is a consumer copy of the replica. Sessions are ordered most
// recently updated first.
type View struct {
	Hydrated    bool
	Stations    []model.Station
	Sessions    []model.Session
	Marketplace []model.MarketplaceItem
	World       []model.WorldPlot
	Events      []proto.Event
	Dashboard   *model.Dashboard
}

// Replica is the client-side copy of gateway state. It is not safe for
// concurrent use; the Reconciler serialises access. Applied events are
// retained as-is and must not be mutated by the caller afterwards.
type Replica struct {
	hydrated        bool
	stations        index[model.Station]
	sessions        index[model.Session]
	marketplace     []model.MarketplaceItem
	world           index[model.WorldPlot]
	events          []proto.Event
	dashboard       *model.Dashboard
	dashboardPushed bool
}

var _ proto.Visitor = (*Replica)(nil)

func NewReplica() *Replica {
	return &Replica{
		stations: newIndex[model.Station](),
		sessions: newIndex[model.Session](),
		world:    newIndex[model.WorldPlot](),
	}
}

// Apply merges one live event.
func (r *Replica) Apply(event proto.Event) {
	event.Accept(r)
}

// Hydrate replaces the replica with the result of the REST reads.
func (r *Replica) Hydrate(initial Initial) {
	dashboard := initial.Dashboard.Clone()
	r.replace(initial.Stations, initial.Sessions, initial.Marketplace, initial.World, initial.Events, &dashboard)
	r.dashboardPushed = false
}

// SetDashboard stores a polled aggregate.
func (r *Replica) SetDashboard(dashboard model.Dashboard) {
	dashboard = dashboard.Clone()
	r.dashboard = &dashboard
}

// DashboardPushed reports whether the current aggregate arrived on the stream.
func (r *Replica) DashboardPushed() bool {
	return r.dashboardPushed
}

func (r *Replica) replace(stations []model.Station, sessions []model.Session, items []model.MarketplaceItem, world []model.WorldPlot, events []proto.Event, dashboard *model.Dashboard) {
	r.hydrated = true
	r.stations = newIndex[model.Station]()
	for _, station := range stations {
		r.stations.put(station.ID, station.Clone())
	}
	r.sessions = newIndex[model.Session]()
	for _, session := range sessions {
		r.sessions.put(session.ID, session.Clone())
	}
	r.marketplace = slices.Clone(items)
	r.world = newIndex[model.WorldPlot]()
	for _, plot := range world {
		r.world.put(plot.RegionKey, plot.Clone())
	}
	if len(events) > MaxEvents {
		events = events[len(events)-MaxEvents:]
	}
	r.events = slices.Clone(events)
	r.dashboard = dashboard
}

func (r *Replica) VisitBootstrap(e proto.Bootstrap) {
	var dashboard *model.Dashboard
	if e.Payload.Dashboard != nil {
		cloned := e.Payload.Dashboard.Clone()
		dashboard = &cloned
	}
	p := e.Payload
	r.replace(p.Stations, p.Sessions, p.Marketplace, p.World, p.RecentEvents, dashboard)
	r.dashboardPushed = dashboard != nil
}

func (r *Replica) VisitSessionStart(e proto.SessionStart) {
	r.sessions.put(e.Payload.ID, e.Payload.Clone())
	r.record(e)
}

func (r *Replica) VisitSessionUpdate(e proto.SessionUpdate) {
	r.sessions.put(e.Payload.ID, e.Payload.Clone())
	r.record(e)
}

func (r *Replica) VisitSessionComplete(e proto.SessionComplete) {
	r.sessions.put(e.Payload.ID, e.Payload.Clone())
	r.record(e)
}

func (r *Replica) VisitStationStatus(e proto.StationStatus) {
	r.stations.put(e.Payload.ID, e.Payload.Clone())
	r.record(e)
}

// VisitPointsPurchase lowers the matching item's stock. Items already at zero
// and unknown items are left alone.
func (r *Replica) VisitPointsPurchase(e proto.PointsPurchase) {
	for i := range r.marketplace {
		item := &r.marketplace[i]
		if item.ID != e.Payload.ItemID || item.Inventory <= 0 {
			continue
		}
		if e.Payload.RemainingInventory != nil {
			item.Inventory = *e.Payload.RemainingInventory
		} else {
			item.Inventory = max(item.Inventory-1, 0)
		}
	}
	r.record(e)
}

func (r *Replica) VisitWorldPlotClaim(e proto.WorldPlotClaim) {
	r.world.put(e.Payload.RegionKey, e.Payload.Clone())
	r.record(e)
}

func (r *Replica) record(event proto.Event) {
	if len(r.events) >= MaxEvents {
		r.events = slices.Delete(r.events, 0, len(r.events)-MaxEvents+1)
	}
	r.events = append(r.events, event)
}

// View returns a deep copy of the replica.
func (r *Replica) View() View {
	view := View{
		Hydrated:    r.hydrated,
		Stations:    r.stations.values(model.Station.Clone),
		Sessions:    r.sessions.values(model.Session.Clone),
		Marketplace: slices.Clone(r.marketplace),
		World:       r.world.values(model.WorldPlot.Clone),
		Events:      slices.Clone(r.events),
	}
	slices.SortStableFunc(view.Sessions, func(a, b model.Session) int {
		switch {
		case a.UpdatedAt > b.UpdatedAt:
			return -1
		case a.UpdatedAt < b.UpdatedAt:
			return 1
		default:
			return 0
		}
	})
	if r.dashboard != nil {
		dashboard := r.dashboard.Clone()
		view.Dashboard = &dashboard
	}
	return view
}

// index keeps values by key in first-insertion order.
type index[T any] struct {
	order []string
	items map[string]T
}

func newIndex[T any]() index[T] {
	return index[T]{items: make(map[string]T)}
}

func (i *index[T]) put(key string, value T) {
	if _, ok := i.items[key]; !ok {
		i.order = append(i.order, key)
	}
	i.items[key] = value
}

func (i *index[T]) values(clone func(T) T) []T {
	out := make([]T, 0, len(i.order))
	for _, key := range i.order {
		out = append(out, clone(i.items[key]))
	}
	return out
}

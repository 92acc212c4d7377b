// Package store holds the canonical in-memory state of the gateway. All
// access goes through Update (exclusive) or View (shared); values crossing
// the package boundary are copies, so callers never alias stored records.
package store

import (
	"sort"
	"strings"
	"sync"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
)

// Placeholder values for stations first seen through a session or status event.
const (
	PlaceholderCity      = "Neo Cascadia"
	PlaceholderLatitude  = 47.6062
	PlaceholderLongitude = -122.3321
)

var placeholderConnectors = []string{"CCS", "CHAdeMO"}

// Option configures a Store.
type Option func(*Store)

// WithRecentEvents overrides the recent-event ring capacity.
func WithRecentEvents(capacity int) Option {
	return func(s *Store) { s.events = newRing(capacity) }
}

// Store is the single source of truth for stations, sessions, marketplace
// items, world plots and the recent-event ring.
type Store struct {
	mu          sync.RWMutex
	stations    keyed[model.Station]
	sessions    keyed[model.Session]
	marketplace keyed[model.MarketplaceItem]
	world       keyed[model.WorldPlot]
	events      *ring
}

// New constructs a store seeded with the given marketplace catalog.
func New(catalog []model.MarketplaceItem, opts ...Option) *Store {
	s := &Store{
		stations:    newKeyed[model.Station](),
		sessions:    newKeyed[model.Session](),
		marketplace: newKeyed[model.MarketplaceItem](),
		world:       newKeyed[model.WorldPlot](),
		events:      newRing(DefaultRecentEvents),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for _, item := range catalog {
		if item.Inventory < 0 {
			item.Inventory = 0
		}
		s.marketplace.put(item.ID, item)
	}
	return s
}

// Update runs fn with exclusive access. Readers never observe a partially
// applied fn; an error returned by fn does not roll back writes already made,
// so handlers check preconditions before mutating.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{Reader{s}})
}

// View runs fn with shared access.
func (s *Store) View(fn func(r Reader)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(Reader{s})
}

// Reader exposes read operations. Every returned value is a copy.
type Reader struct {
	s *Store
}

// Station looks a station up by id.
func (r Reader) Station(id string) (model.Station, bool) {
	station, ok := r.s.stations.get(id)
	return station.Clone(), ok
}

// Session looks a session up by id.
func (r Reader) Session(id string) (model.Session, bool) {
	session, ok := r.s.sessions.get(id)
	return session.Clone(), ok
}

// Item looks a marketplace item up by id.
func (r Reader) Item(id string) (model.MarketplaceItem, bool) {
	return r.s.marketplace.get(id)
}

// WorldPlot looks a claimed plot up by region key.
func (r Reader) WorldPlot(regionKey string) (model.WorldPlot, bool) {
	plot, ok := r.s.world.get(regionKey)
	return plot.Clone(), ok
}

// Stations returns every station in first-seen order.
func (r Reader) Stations() []model.Station {
	out := make([]model.Station, 0, r.s.stations.len())
	r.s.stations.each(func(station model.Station) { out = append(out, station.Clone()) })
	return out
}

// Sessions returns every session in creation order.
func (r Reader) Sessions() []model.Session {
	out := make([]model.Session, 0, r.s.sessions.len())
	r.s.sessions.each(func(session model.Session) { out = append(out, session.Clone()) })
	return out
}

// RecentSessions returns up to limit sessions, most recently updated first.
// limit <= 0 means all.
func (r Reader) RecentSessions(limit int) []model.Session {
	sessions := r.Sessions()
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

// Marketplace returns the catalog in seed order.
func (r Reader) Marketplace() []model.MarketplaceItem {
	out := make([]model.MarketplaceItem, 0, r.s.marketplace.len())
	r.s.marketplace.each(func(item model.MarketplaceItem) { out = append(out, item) })
	return out
}

// World returns every plot in first-claim order.
func (r Reader) World() []model.WorldPlot {
	out := make([]model.WorldPlot, 0, r.s.world.len())
	r.s.world.each(func(plot model.WorldPlot) { out = append(out, plot.Clone()) })
	return out
}

// RecentEvents returns up to n of the newest events, oldest first. n <= 0
// returns the whole ring.
func (r Reader) RecentEvents(n int) []proto.Event {
	return r.s.events.last(n)
}

// RecentEventCount reports how many events the ring holds.
func (r Reader) RecentEventCount() int {
	return r.s.events.len()
}

// Tx is the mutable view handed to Update.
type Tx struct {
	Reader
}

// EnsureStation returns the station with the given id, inserting a
// placeholder when it is unknown. Known stations are returned unchanged.
func (tx *Tx) EnsureStation(id string) model.Station {
	if station, ok := tx.s.stations.get(id); ok {
		return station.Clone()
	}
	placeholder := PlaceholderStation(id)
	tx.s.stations.put(id, placeholder)
	return placeholder.Clone()
}

// UpsertStation inserts or fully replaces a station.
func (tx *Tx) UpsertStation(station model.Station) {
	tx.s.stations.put(station.ID, station.Clone())
}

// UpsertSession inserts or fully replaces a session. The owning station's
// active-session reference points at it while it is charging and is cleared
// once it ends.
func (tx *Tx) UpsertSession(session model.Session) {
	tx.s.sessions.put(session.ID, session.Clone())
	station, ok := tx.s.stations.get(session.StationID)
	if !ok {
		return
	}
	switch {
	case session.Status == model.SessionCharging:
		station.ActiveSessionID = session.ID
	case station.ActiveSessionID == session.ID:
		station.ActiveSessionID = ""
	default:
		return
	}
	tx.s.stations.put(station.ID, station)
}

// AdjustInventory adds delta to an item's inventory, clamped at zero, and
// returns the resulting count.
func (tx *Tx) AdjustInventory(itemID string, delta int) (int, bool) {
	item, ok := tx.s.marketplace.get(itemID)
	if !ok {
		return 0, false
	}
	item.Inventory += delta
	if item.Inventory < 0 {
		item.Inventory = 0
	}
	tx.s.marketplace.put(itemID, item)
	return item.Inventory, true
}

// UpsertWorldPlot inserts or fully replaces a plot keyed by region.
func (tx *Tx) UpsertWorldPlot(plot model.WorldPlot) {
	tx.s.world.put(plot.RegionKey, plot.Clone())
}

// AppendEvent pushes an event onto the recent-event ring.
func (tx *Tx) AppendEvent(event proto.Event) {
	tx.s.events.push(event)
}

// EnsureStation runs Tx.EnsureStation in its own transaction. The Store-level
// mutators are one-shot helpers for seeding and tests; ingestion composes Tx
// operations inside a single Update so the broadcast commits with them.
func (s *Store) EnsureStation(id string) model.Station {
	var station model.Station
	_ = s.Update(func(tx *Tx) error {
		station = tx.EnsureStation(id)
		return nil
	})
	return station
}

// UpsertStation runs Tx.UpsertStation in its own transaction.
func (s *Store) UpsertStation(station model.Station) {
	_ = s.Update(func(tx *Tx) error {
		tx.UpsertStation(station)
		return nil
	})
}

// UpsertSession runs Tx.UpsertSession in its own transaction.
func (s *Store) UpsertSession(session model.Session) {
	_ = s.Update(func(tx *Tx) error {
		tx.UpsertSession(session)
		return nil
	})
}

// AdjustInventory runs Tx.AdjustInventory in its own transaction.
func (s *Store) AdjustInventory(itemID string, delta int) (int, bool) {
	var (
		remaining int
		ok        bool
	)
	_ = s.Update(func(tx *Tx) error {
		remaining, ok = tx.AdjustInventory(itemID, delta)
		return nil
	})
	return remaining, ok
}

// UpsertWorldPlot runs Tx.UpsertWorldPlot in its own transaction.
func (s *Store) UpsertWorldPlot(plot model.WorldPlot) {
	_ = s.Update(func(tx *Tx) error {
		tx.UpsertWorldPlot(plot)
		return nil
	})
}

// AppendEvent runs Tx.AppendEvent in its own transaction.
func (s *Store) AppendEvent(event proto.Event) {
	_ = s.Update(func(tx *Tx) error {
		tx.AppendEvent(event)
		return nil
	})
}

// PlaceholderStation is the deterministic record synthesized for an unknown
// station id.
func PlaceholderStation(id string) model.Station {
	prefix := []rune(id)
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return model.Station{
		ID:   id,
		Name: "Station " + strings.ToUpper(string(prefix)),
		Location: model.Location{
			City:      PlaceholderCity,
			Latitude:  PlaceholderLatitude,
			Longitude: PlaceholderLongitude,
		},
		Connectors: append([]string(nil), placeholderConnectors...),
		Status:     model.StationOnline,
	}
}

// keyed is a map that remembers insertion order.
type keyed[T any] struct {
	index map[string]int
	items []T
}

func newKeyed[T any]() keyed[T] {
	return keyed[T]{index: make(map[string]int)}
}

func (k *keyed[T]) get(id string) (T, bool) {
	if i, ok := k.index[id]; ok {
		return k.items[i], true
	}
	var zero T
	return zero, false
}

func (k *keyed[T]) put(id string, value T) {
	if i, ok := k.index[id]; ok {
		k.items[i] = value
		return
	}
	k.index[id] = len(k.items)
	k.items = append(k.items, value)
}

func (k *keyed[T]) each(fn func(T)) {
	for _, item := range k.items {
		fn(item)
	}
}

func (k *keyed[T]) len() int { return len(k.items) }

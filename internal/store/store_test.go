package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
)

func testCatalog() []model.MarketplaceItem {
	return []model.MarketplaceItem{
		{ID: "vip-pass", Inventory: 2},
		{ID: "empty", Inventory: 0},
	}
}

func TestEnsureStationCreatesPlaceholderOnce(t *testing.T) {
	s := New(testCatalog())

	first := s.EnsureStation("stat-alpha")
	require.Equal(t, "Station STAT", first.Name)
	require.Equal(t, PlaceholderCity, first.Location.City)
	require.Equal(t, []string{"CCS", "CHAdeMO"}, first.Connectors)
	require.Equal(t, model.StationOnline, first.Status)

	updated := first
	updated.Status = model.StationMaintenance
	updated.LivePowerKw = 42
	s.UpsertStation(updated)

	again := s.EnsureStation("stat-alpha")
	require.Equal(t, model.StationMaintenance, again.Status)
	require.Equal(t, 42.0, again.LivePowerKw)

	s.View(func(r Reader) {
		require.Len(t, r.Stations(), 1)
	})
}

func TestPlaceholderNameUsesShortIDs(t *testing.T) {
	require.Equal(t, "Station AB", PlaceholderStation("ab").Name)
}

func TestAdjustInventoryClampsAtZero(t *testing.T) {
	s := New(testCatalog())

	remaining, ok := s.AdjustInventory("vip-pass", -1)
	require.True(t, ok)
	require.Equal(t, 1, remaining)

	remaining, _ = s.AdjustInventory("vip-pass", -5)
	require.Equal(t, 0, remaining)

	remaining, _ = s.AdjustInventory("empty", -1)
	require.Equal(t, 0, remaining)

	_, ok = s.AdjustInventory("missing", -1)
	require.False(t, ok)
}

func TestAppendEventKeepsNewest(t *testing.T) {
	s := New(nil, WithRecentEvents(3))
	for i := 0; i < 5; i++ {
		s.AppendEvent(proto.StationStatus{Payload: model.Station{ID: fmt.Sprintf("s%d", i)}})
	}

	s.View(func(r Reader) {
		events := r.RecentEvents(0)
		require.Len(t, events, 3)
		require.Equal(t, "s2", events[0].(proto.StationStatus).Payload.ID)
		require.Equal(t, "s4", events[2].(proto.StationStatus).Payload.ID)

		newest := r.RecentEvents(1)
		require.Equal(t, "s4", newest[0].(proto.StationStatus).Payload.ID)
	})
}

func TestDefaultRingCapacity(t *testing.T) {
	s := New(nil)
	for i := 0; i < DefaultRecentEvents+25; i++ {
		s.AppendEvent(proto.WorldPlotClaim{Payload: model.WorldPlot{RegionKey: fmt.Sprint(i)}})
	}
	s.View(func(r Reader) {
		require.Equal(t, DefaultRecentEvents, r.RecentEventCount())
	})
}

func TestUpsertSessionTracksActiveSession(t *testing.T) {
	s := New(nil)
	s.EnsureStation("a")

	session := model.Session{ID: "s1", StationID: "a", Status: model.SessionCharging}
	s.UpsertSession(session)
	s.View(func(r Reader) {
		station, _ := r.Station("a")
		require.Equal(t, "s1", station.ActiveSessionID)
	})

	session.Status = model.SessionCompleted
	s.UpsertSession(session)
	s.View(func(r Reader) {
		station, _ := r.Station("a")
		require.Empty(t, station.ActiveSessionID)
	})
}

func TestReadsReturnCopies(t *testing.T) {
	s := New(nil)
	s.UpsertWorldPlot(model.WorldPlot{RegionKey: "r", Boosts: []model.Boost{{Label: "x", Magnitude: 1}}})
	s.EnsureStation("a")

	s.View(func(r Reader) {
		plots := r.World()
		plots[0].Boosts[0].Label = "mutated"
		stations := r.Stations()
		stations[0].Connectors[0] = "mutated"
	})

	s.View(func(r Reader) {
		plot, _ := r.WorldPlot("r")
		assert.Equal(t, "x", plot.Boosts[0].Label)
		station, _ := r.Station("a")
		assert.Equal(t, "CCS", station.Connectors[0])
	})
}

func TestRecentSessionsSortsByUpdate(t *testing.T) {
	s := New(nil)
	s.UpsertSession(model.Session{ID: "old", UpdatedAt: 1})
	s.UpsertSession(model.Session{ID: "new", UpdatedAt: 3})
	s.UpsertSession(model.Session{ID: "mid", UpdatedAt: 2})

	s.View(func(r Reader) {
		sessions := r.RecentSessions(2)
		require.Len(t, sessions, 2)
		require.Equal(t, "new", sessions[0].ID)
		require.Equal(t, "mid", sessions[1].ID)
	})
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	s := New([]model.MarketplaceItem{{ID: "item", Inventory: 1000}})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AdjustInventory("item", -1)
		}()
	}
	wg.Wait()

	s.View(func(r Reader) {
		item, _ := r.Item("item")
		require.Equal(t, 900, item.Inventory)
	})
}

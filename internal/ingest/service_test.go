package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decharge/gateway/internal/hub"
	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/intake"
	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/store"
)

type fixedRandom struct {
	float float64
	index int
}

func (r fixedRandom) Float64() float64 { return r.float }
func (r fixedRandom) IntN(int) int     { return r.index }

type harness struct {
	store   *store.Store
	service *Service
}

func newHarness(t *testing.T, catalog []model.MarketplaceItem) *harness {
	t.Helper()
	s := store.New(catalog)
	h := hub.New(s, hub.Config{})
	var (
		mu  sync.Mutex
		seq int
	)
	svc := New(s, h, Config{
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("session-%d", seq)
		},
		Now:    func() time.Time { return time.UnixMilli(5_000) },
		Random: fixedRandom{float: 0.75, index: 1},
	})
	return &harness{store: s, service: svc}
}

func (h *harness) ingest(t *testing.T, body string) (intake.Result, error) {
	t.Helper()
	return h.service.Ingest(context.Background(), []byte(body))
}

func (h *harness) mustIngest(t *testing.T, body string) intake.Result {
	t.Helper()
	result, err := h.ingest(t, body)
	require.NoError(t, err)
	return result
}

func (h *harness) recentEvents() []proto.Event {
	var events []proto.Event
	h.store.View(func(r store.Reader) { events = r.RecentEvents(0) })
	return events
}

func (h *harness) session(t *testing.T, id string) model.Session {
	t.Helper()
	var (
		session model.Session
		ok      bool
	)
	h.store.View(func(r store.Reader) { session, ok = r.Session(id) })
	require.True(t, ok, "session %s missing", id)
	return session
}

func TestSessionStartCreatesSessionAndPlaceholderStation(t *testing.T) {
	h := newHarness(t, nil)

	result := h.mustIngest(t, `{"type":"session_start","stationId":"stat-a","driver":"Ada","vehicleModel":"X","energyDeliveredKwh":1.0,"pointsEarned":100}`)
	require.Equal(t, "session-1", result.SessionID)

	var sessions []model.Session
	var station model.Station
	h.store.View(func(r store.Reader) {
		sessions = r.RecentSessions(50)
		station, _ = r.Station("stat-a")
	})
	require.Len(t, sessions, 1)
	require.Equal(t, "stat-a", sessions[0].StationID)
	require.Equal(t, model.SessionCharging, sessions[0].Status)
	require.Equal(t, 1.0, sessions[0].EnergyDeliveredKwh)
	require.Equal(t, 100.0, sessions[0].PointsEarned)
	require.Equal(t, int64(5_000), sessions[0].StartedAt)

	require.Equal(t, "Station STAT", station.Name)
	require.Equal(t, "session-1", station.ActiveSessionID)

	events := h.recentEvents()
	require.Len(t, events, 1)
	require.Equal(t, proto.TypeSessionStart, events[0].Type())
}

func TestUnknownSessionIsNotFoundWithoutBroadcast(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ingest(t, `{"type":"session_update","sessionId":"ghost","energyDeliveredKwh":2}`)
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, CodeSessionNotFound, notFound.Code)

	_, err = h.ingest(t, `{"type":"session_complete","sessionId":"ghost"}`)
	require.True(t, errors.As(err, &notFound))

	require.Empty(t, h.recentEvents())
	h.store.View(func(r store.Reader) { require.Empty(t, r.Sessions()) })
}

func TestValidationFailureMakesNoChange(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ingest(t, `{"type":"station_status","stationId":"a","status":"online","utilizationPercent":140}`)
	var verr *intake.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.FieldErrors, "utilizationPercent")

	require.Empty(t, h.recentEvents())
	h.store.View(func(r store.Reader) { require.Empty(t, r.Stations()) })
}

func TestSessionUpdateAndComplete(t *testing.T) {
	h := newHarness(t, nil)
	id := h.mustIngest(t, `{"type":"session_start","stationId":"a","energyDeliveredKwh":1,"pointsEarned":10}`).SessionID

	h.mustIngest(t, fmt.Sprintf(`{"type":"session_update","sessionId":%q,"energyDeliveredKwh":3,"timestamp":6000}`, id))
	session := h.session(t, id)
	assert.Equal(t, 3.0, session.EnergyDeliveredKwh)
	assert.Equal(t, 10.0, session.PointsEarned, "absent points keep the stored value")
	assert.Equal(t, int64(6000), session.UpdatedAt)

	h.mustIngest(t, fmt.Sprintf(`{"type":"session_complete","sessionId":%q,"energyDeliveredKwh":4,"pointsEarned":40,"timestamp":7000}`, id))
	session = h.session(t, id)
	assert.Equal(t, model.SessionCompleted, session.Status)
	require.NotNil(t, session.EndedAt)
	assert.Equal(t, int64(7000), *session.EndedAt)

	h.store.View(func(r store.Reader) {
		station, _ := r.Station("a")
		assert.Empty(t, station.ActiveSessionID)
	})

	_, err := h.ingest(t, fmt.Sprintf(`{"type":"session_update","sessionId":%q,"energyDeliveredKwh":9}`, id))
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, CodeSessionTerminal, conflict.Code)
	assert.Equal(t, 4.0, h.session(t, id).EnergyDeliveredKwh)

	types := []proto.Type{}
	for _, event := range h.recentEvents() {
		types = append(types, event.Type())
	}
	assert.Equal(t, []proto.Type{proto.TypeSessionStart, proto.TypeSessionUpdate, proto.TypeSessionComplete}, types)
}

func TestAbortViaUpdateClearsActiveSession(t *testing.T) {
	h := newHarness(t, nil)
	id := h.mustIngest(t, `{"type":"session_start","stationId":"a"}`).SessionID

	h.mustIngest(t, fmt.Sprintf(`{"type":"session_update","sessionId":%q,"status":"aborted"}`, id))

	h.store.View(func(r store.Reader) {
		station, _ := r.Station("a")
		assert.Empty(t, station.ActiveSessionID)
	})
	assert.Nil(t, h.session(t, id).EndedAt)
}

func TestStationStatusOverwritesProvidedFields(t *testing.T) {
	h := newHarness(t, nil)

	h.mustIngest(t, `{"type":"station_status","stationId":"a","status":"online","livePowerKw":50,"utilizationPercent":40,"carbonOffsetKg":2,"dailyEnergyKwh":120}`)
	h.mustIngest(t, `{"type":"station_status","stationId":"a","status":"maintenance","livePowerKw":0}`)

	var stations []model.Station
	h.store.View(func(r store.Reader) { stations = r.Stations() })
	require.Len(t, stations, 1)
	assert.Equal(t, model.StationMaintenance, stations[0].Status)
	assert.Zero(t, stations[0].LivePowerKw)
	assert.Equal(t, 40.0, stations[0].UtilizationPercent)
	assert.Equal(t, 120.0, stations[0].DailyEnergyKwh)
}

func TestPointsPurchaseClampsInventory(t *testing.T) {
	h := newHarness(t, []model.MarketplaceItem{{ID: "vip-pass", Inventory: 4}})

	var remaining []int
	for i := 0; i < 9; i++ {
		h.mustIngest(t, `{"type":"points_purchase","itemId":"vip-pass","wallet":"W1","points":950}`)
	}
	for _, event := range h.recentEvents() {
		receipt := event.(proto.PointsPurchase).Payload
		require.NotNil(t, receipt.RemainingInventory)
		remaining = append(remaining, *receipt.RemainingInventory)
	}
	require.Equal(t, []int{3, 2, 1, 0, 0, 0, 0, 0, 0}, remaining)

	h.store.View(func(r store.Reader) {
		item, _ := r.Item("vip-pass")
		require.Equal(t, 0, item.Inventory)
	})

	_, err := h.ingest(t, `{"type":"points_purchase","itemId":"nope","wallet":"W1","points":1}`)
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, CodeItemNotFound, notFound.Code)
}

func TestPointsPurchaseCountsEverySuccessfulDecrement(t *testing.T) {
	h := newHarness(t, []model.MarketplaceItem{{ID: "vip-pass", Inventory: 150}})

	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ingest(t, `{"type":"points_purchase","itemId":"vip-pass","wallet":"W1","points":950}`)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h.store.View(func(r store.Reader) {
		item, _ := r.Item("vip-pass")
		require.Equal(t, 141, item.Inventory)
	})
}

func TestWorldPlotClaimAssignsServerFields(t *testing.T) {
	h := newHarness(t, nil)

	h.mustIngest(t, `{"type":"world_plot_claim","regionKey":"r1","wallet":"0xabc"}`)
	h.mustIngest(t, `{"type":"world_plot_claim","regionKey":"r1","wallet":"0xdef","boosts":[{"label":"solar","magnitude":2}],"coordinates":[1,2,3],"powerScore":12.5,"vibe":"eco"}`)

	var plots []model.WorldPlot
	h.store.View(func(r store.Reader) { plots = r.World() })
	require.Len(t, plots, 1)
	assert.Equal(t, "0xdef", plots[0].Owner)
	assert.Equal(t, [3]float64{1, 2, 3}, plots[0].Coordinates)
	assert.Equal(t, []model.Boost{{Label: "solar", Magnitude: 2}}, plots[0].Boosts)

	first := h.recentEvents()[0].(proto.WorldPlotClaim).Payload
	assert.Equal(t, [3]float64{50, 0, 50}, first.Coordinates)
	assert.Equal(t, 75.0, first.PowerScore)
	assert.Equal(t, model.VibeTech, first.Vibe)
	assert.NotNil(t, first.Boosts)
}

func TestOrderedUpdatesKeepLaterValues(t *testing.T) {
	h := newHarness(t, nil)
	id := h.mustIngest(t, `{"type":"session_start","stationId":"a"}`).SessionID

	first := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(first)
		_, err := h.ingest(t, fmt.Sprintf(`{"type":"session_update","sessionId":%q,"energyDeliveredKwh":5,"pointsEarned":50,"timestamp":6000}`, id))
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		<-first
		_, err := h.ingest(t, fmt.Sprintf(`{"type":"session_update","sessionId":%q,"energyDeliveredKwh":2,"pointsEarned":20,"timestamp":7000}`, id))
		assert.NoError(t, err)
	}()
	wg.Wait()

	session := h.session(t, id)
	assert.Equal(t, 2.0, session.EnergyDeliveredKwh)
	assert.Equal(t, 20.0, session.PointsEarned)
	assert.Equal(t, int64(7000), session.UpdatedAt)
}

func TestConcurrentPartialUpdatesDoNotLoseFields(t *testing.T) {
	h := newHarness(t, nil)
	id := h.mustIngest(t, `{"type":"session_start","stationId":"a"}`).SessionID

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.ingest(t, fmt.Sprintf(`{"type":"session_update","sessionId":%q,"energyDeliveredKwh":8}`, id))
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := h.ingest(t, fmt.Sprintf(`{"type":"session_update","sessionId":%q,"pointsEarned":80}`, id))
		assert.NoError(t, err)
	}()
	wg.Wait()

	session := h.session(t, id)
	assert.Equal(t, 8.0, session.EnergyDeliveredKwh)
	assert.Equal(t, 80.0, session.PointsEarned)
}

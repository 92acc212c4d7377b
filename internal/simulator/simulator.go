// Package simulator produces a plausible stream of charging telemetry
// against a gateway's ingestion endpoint.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"decharge/gateway/internal/client"
	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/intake"
	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
	simlog "decharge/gateway/logging/simulation"
)

// Ingester posts one ingestion body. *client.Client satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, event any) (client.IngestResponse, error)
}

// Random is the simulator's entropy source. *rand.Rand satisfies it.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.IntN(n) }

type Driver struct {
	Name    string
	Vehicle string
}

// Intervals sets the cadence of each activity.
type Intervals struct {
	SessionStart  time.Duration
	SessionUpdate time.Duration
	StationTick   time.Duration
	Purchase      time.Duration
	WorldClaim    time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		SessionStart:  14 * time.Second,
		SessionUpdate: 6 * time.Second,
		StationTick:   18 * time.Second,
		Purchase:      22 * time.Second,
		WorldClaim:    28 * time.Second,
	}
}

// withDefaults fills every non-positive interval from DefaultIntervals.
func (i Intervals) withDefaults() Intervals {
	defaults := DefaultIntervals()
	for _, pair := range []struct{ value, fallback *time.Duration }{
		{&i.SessionStart, &defaults.SessionStart},
		{&i.SessionUpdate, &defaults.SessionUpdate},
		{&i.StationTick, &defaults.StationTick},
		{&i.Purchase, &defaults.Purchase},
		{&i.WorldClaim, &defaults.WorldClaim},
	} {
		if *pair.value <= 0 {
			*pair.value = *pair.fallback
		}
	}
	return i
}

type Config struct {
	Stations  []string
	Drivers   []Driver
	Regions   []string
	Items     []string
	Intervals Intervals
	Random    Random
	Logger    telemetry.Logger
	Publisher logging.Publisher
}

var (
	defaultStations = []string{"stat-alpha", "stat-bravo", "stat-charlie", "stat-delta", "stat-echo"}
	defaultDrivers  = []Driver{
		{"Alya Chen", "Lucid Air Pure"},
		{"Noah Singh", "Tesla Model 3 Highland"},
		{"Maya Okafor", "Rivian R1S"},
		{"Jonah Alvarez", "Hyundai Ioniq 6"},
		{"Selene Park", "Polestar 3"},
		{"Zara Malik", "Kia EV9"},
	}
	defaultRegions = []string{"aurora-basin", "solstice-grove", "quantum-docks", "pulse-avenue", "ionia-cradle", "hydra-orbit"}
	defaultItems   = []string{"energy-boost", "ride-credits", "solar-upgrade", "vip-pass"}
	boostLabels    = []string{"Solar Array", "Grid Sync", "Community Boost"}
)

const walletAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

type activeSession struct {
	id        string
	stationID string
	energy    float64
	points    float64
}

// Simulator is driven by a single goroutine; its methods are not safe for
// concurrent use.
type Simulator struct {
	api       Ingester
	cfg       Config
	random    Random
	logger    telemetry.Logger
	publisher logging.Publisher

	active  []*activeSession
	claimed map[string]struct{}
}

func New(api Ingester, cfg Config) *Simulator {
	if len(cfg.Stations) == 0 {
		cfg.Stations = defaultStations
	}
	if len(cfg.Drivers) == 0 {
		cfg.Drivers = defaultDrivers
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = defaultRegions
	}
	if len(cfg.Items) == 0 {
		cfg.Items = defaultItems
	}
	cfg.Intervals = cfg.Intervals.withDefaults()
	sim := &Simulator{
		api:       api,
		cfg:       cfg,
		random:    cfg.Random,
		logger:    cfg.Logger,
		publisher: cfg.Publisher,
		claimed:   make(map[string]struct{}),
	}
	if sim.random == nil {
		sim.random = globalRandom{}
	}
	if sim.logger == nil {
		sim.logger = telemetry.Discard()
	}
	if sim.publisher == nil {
		sim.publisher = logging.NopPublisher()
	}
	return sim
}

// Run seeds every station and then produces events until ctx ends. Failed
// posts after seeding are logged and do not stop the loop.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.SeedStations(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("seed stations: %w", err)
	}

	starts := time.NewTicker(s.cfg.Intervals.SessionStart)
	updates := time.NewTicker(s.cfg.Intervals.SessionUpdate)
	stations := time.NewTicker(s.cfg.Intervals.StationTick)
	purchases := time.NewTicker(s.cfg.Intervals.Purchase)
	claims := time.NewTicker(s.cfg.Intervals.WorldClaim)
	defer func() {
		for _, t := range []*time.Ticker{starts, updates, stations, purchases, claims} {
			t.Stop()
		}
	}()

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case <-starts.C:
			err = s.StartSession(ctx)
		case <-updates.C:
			err = s.UpdateSessions(ctx)
		case <-stations.C:
			err = s.TickStations(ctx)
		case <-purchases.C:
			err = s.Purchase(ctx)
		case <-claims.C:
			err = s.ClaimPlot(ctx)
		}
		if err != nil && ctx.Err() == nil {
			s.logger.Printf("simulator: %v", err)
		}
	}
}

// SeedStations brings every station online.
func (s *Simulator) SeedStations(ctx context.Context) error {
	var errs []error
	for i, id := range s.cfg.Stations {
		basePower := 80 + float64(i)*12
		body := intake.StationStatusPayload{
			Type:               string(proto.TypeStationStatus),
			StationID:          id,
			Status:             string(model.StationOnline),
			LivePowerKw:        ptr(basePower),
			UtilizationPercent: ptr(math.Min(95, 55+s.random.Float64()*30)),
			CarbonOffsetKg:     ptr(s.random.Float64() * 12),
			DailyEnergyKwh:     ptr(basePower * (s.random.Float64()*4 + 8)),
		}
		if _, err := s.post(ctx, body.Type, body, "station online"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartSession plugs a random driver into a random station.
func (s *Simulator) StartSession(ctx context.Context) error {
	stationID := pick(s.random, s.cfg.Stations)
	driver := pick(s.random, s.cfg.Drivers)
	energy := round(s.random.Float64()*3, 2)
	points := math.Round(120 + s.random.Float64()*220)

	body := intake.SessionStartPayload{
		Type:               string(proto.TypeSessionStart),
		StationID:          stationID,
		Driver:             driver.Name,
		VehicleModel:       driver.Vehicle,
		EnergyDeliveredKwh: ptr(energy),
		PointsEarned:       ptr(points),
	}
	resp, err := s.post(ctx, body.Type, body, fmt.Sprintf("%s at %s", driver.Name, stationID))
	if err != nil {
		return err
	}
	if resp.SessionID == "" {
		return errors.New("session_start answered without a session id")
	}
	s.active = append(s.active, &activeSession{id: resp.SessionID, stationID: stationID, energy: energy, points: points})
	return nil
}

// UpdateSessions advances every active session; roughly a quarter complete.
func (s *Simulator) UpdateSessions(ctx context.Context) error {
	var (
		errs []error
		kept []*activeSession
	)
	for _, session := range s.active {
		if s.random.Float64() < 0.25 {
			session.energy += round(s.random.Float64()*6, 2)
			session.points += math.Round(200 + s.random.Float64()*180)
			body := intake.SessionCompletePayload{
				Type:               string(proto.TypeSessionComplete),
				SessionID:          session.id,
				StationID:          session.stationID,
				EnergyDeliveredKwh: ptr(session.energy),
				PointsEarned:       ptr(session.points),
			}
			if _, err := s.post(ctx, body.Type, body, ""); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		session.energy += round(s.random.Float64()*1.7, 2)
		session.points += math.Round(45 + s.random.Float64()*60)
		body := intake.SessionUpdatePayload{
			Type:               string(proto.TypeSessionUpdate),
			SessionID:          session.id,
			StationID:          session.stationID,
			EnergyDeliveredKwh: ptr(session.energy),
			PointsEarned:       ptr(session.points),
			Status:             string(model.SessionCharging),
		}
		if _, err := s.post(ctx, body.Type, body, ""); err != nil {
			errs = append(errs, err)
			var status *client.StatusError
			if errors.As(err, &status) && status.Code < 500 {
				// The gateway no longer knows or accepts this session.
				continue
			}
		}
		kept = append(kept, session)
	}
	s.active = kept
	return errors.Join(errs...)
}

// TickStations refreshes every station's live figures.
func (s *Simulator) TickStations(ctx context.Context) error {
	var errs []error
	for _, id := range s.cfg.Stations {
		body := intake.StationStatusPayload{
			Type:               string(proto.TypeStationStatus),
			StationID:          id,
			Status:             string(model.StationOnline),
			LivePowerKw:        ptr(60 + s.random.Float64()*50),
			UtilizationPercent: ptr(50 + s.random.Float64()*45),
			CarbonOffsetKg:     ptr(s.random.Float64() * 15),
			DailyEnergyKwh:     ptr(400 + s.random.Float64()*250),
		}
		if _, err := s.post(ctx, body.Type, body, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Purchase redeems a random item 60% of the time.
func (s *Simulator) Purchase(ctx context.Context) error {
	if s.random.Float64() > 0.6 {
		return nil
	}
	body := intake.PointsPurchasePayload{
		Type:   string(proto.TypePointsPurchase),
		ItemID: pick(s.random, s.cfg.Items),
		Wallet: s.wallet(),
		Points: math.Round(200 + s.random.Float64()*600),
	}
	_, err := s.post(ctx, body.Type, body, body.ItemID)
	return err
}

// ClaimPlot claims an unclaimed region 35% of the time.
func (s *Simulator) ClaimPlot(ctx context.Context) error {
	if s.random.Float64() > 0.35 {
		return nil
	}
	region := pick(s.random, s.cfg.Regions)
	if _, taken := s.claimed[region]; taken {
		return nil
	}
	boosts := make([]intake.BoostPayload, s.random.IntN(3))
	for i := range boosts {
		boosts[i] = intake.BoostPayload{
			Label:     boostLabels[i%len(boostLabels)],
			Magnitude: ptr(math.Round(s.random.Float64()*20) / 10),
		}
	}
	body := intake.WorldPlotClaimPayload{
		Type:      string(proto.TypeWorldPlotClaim),
		RegionKey: region,
		Wallet:    s.wallet(),
		Boosts:    boosts,
	}
	if _, err := s.post(ctx, body.Type, body, region); err != nil {
		return err
	}
	s.claimed[region] = struct{}{}
	return nil
}

// Active returns the ids of sessions the simulator is still charging.
func (s *Simulator) Active() []string {
	ids := make([]string, 0, len(s.active))
	for _, session := range s.active {
		ids = append(ids, session.id)
	}
	return ids
}

func (s *Simulator) post(ctx context.Context, eventType string, body any, summary string) (client.IngestResponse, error) {
	actor := logging.EntityRef{Kind: logging.EntityKindProducer}
	resp, err := s.api.Ingest(ctx, body)
	if err != nil {
		simlog.ProduceFailed(ctx, s.publisher, actor, simlog.ProduceFailedPayload{Type: eventType, Error: err.Error()}, nil)
		return resp, fmt.Errorf("%s: %w", eventType, err)
	}
	simlog.Produced(ctx, s.publisher, actor, simlog.ProducedPayload{Type: eventType, SessionID: resp.SessionID, Summary: summary}, nil)
	return resp, nil
}

func (s *Simulator) wallet() string {
	buf := make([]byte, 44)
	for i := range buf {
		buf[i] = walletAlphabet[s.random.IntN(len(walletAlphabet))]
	}
	return string(buf)
}

func pick[T any](random Random, items []T) T {
	return items[random.IntN(len(items))]
}

func ptr(v float64) *float64 { return &v }

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Package ingest applies producer events to the canonical store and
// broadcasts the resulting live events. Each call validates first, then
// performs its read-modify-write and the broadcast inside one store
// transaction, so concurrent calls never interleave.
package ingest

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"decharge/gateway/internal/hub"
	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/intake"
	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/store"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
	economylog "decharge/gateway/logging/economy"
	ingestlog "decharge/gateway/logging/ingestion"
)

const tracerName = "decharge/gateway/ingest"

// Random supplies server-assigned world plot attributes. *rand.Rand from
// math/rand/v2 satisfies it.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.IntN(n) }

// Config carries optional collaborators. Nil fields fall back to no-op
// publishing, the global tracer, UUIDv4 ids, the wall clock and math/rand.
type Config struct {
	Metrics   *telemetry.Metrics
	Publisher logging.Publisher
	Tracer    trace.Tracer
	NewID     func() string
	Now       func() time.Time
	Random    Random
}

// Service applies ingestion commands to the store and broadcasts the result.
// It implements intake.Handler.
type Service struct {
	store     *store.Store
	hub       *hub.Hub
	metrics   *telemetry.Metrics
	publisher logging.Publisher
	tracer    trace.Tracer
	newID     func() string
	now       func() time.Time
	random    Random
}

var _ intake.Handler = (*Service)(nil)

// New returns a service writing to s and broadcasting through h.
func New(s *store.Store, h *hub.Hub, cfg Config) *Service {
	svc := &Service{
		store:     s,
		hub:       h,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		tracer:    cfg.Tracer,
		newID:     cfg.NewID,
		now:       cfg.Now,
		random:    cfg.Random,
	}
	if svc.publisher == nil {
		svc.publisher = logging.NopPublisher()
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(tracerName)
	}
	if svc.newID == nil {
		svc.newID = uuid.NewString
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.random == nil {
		svc.random = globalRandom{}
	}
	return svc
}

// Ingest validates and applies one raw event body. Errors are
// *intake.ValidationError, *NotFoundError, *ConflictError or a wrapped
// broadcast failure; none of them leave a partial mutation behind.
func (s *Service) Ingest(ctx context.Context, body []byte) (intake.Result, error) {
	cmd, err := intake.Parse(body, s.now())
	if err != nil {
		s.metrics.Ingest("", telemetry.OutcomeInvalid)
		var verr *intake.ValidationError
		payload := ingestlog.RejectedPayload{Reason: "invalid_payload"}
		if errors.As(err, &verr) {
			payload.Fields = verr.Fields()
		}
		ingestlog.Rejected(ctx, s.publisher, logging.EntityRef{Kind: logging.EntityKindProducer}, payload, nil)
		return intake.Result{}, err
	}
	return s.Apply(ctx, cmd)
}

// Apply runs an already-validated command.
func (s *Service) Apply(ctx context.Context, cmd intake.Command) (intake.Result, error) {
	eventType := string(cmd.Type())
	ctx, span := s.tracer.Start(ctx, "ingest "+eventType, trace.WithAttributes(attribute.String("gateway.event_type", eventType)))
	defer span.End()

	result, err := cmd.Accept(ctx, s)
	actor := actorFor(cmd, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome, reason := classify(err)
		s.metrics.Ingest(eventType, outcome)
		ingestlog.Rejected(ctx, s.publisher, actor, ingestlog.RejectedPayload{Type: eventType, Reason: reason}, nil)
		return intake.Result{}, err
	}
	s.metrics.Ingest(eventType, telemetry.OutcomeAccepted)
	ingestlog.Accepted(ctx, s.publisher, actor, ingestlog.AcceptedPayload{Type: eventType, SessionID: result.SessionID}, nil)
	return result, nil
}

func classify(err error) (outcome, reason string) {
	var (
		notFound *NotFoundError
		conflict *ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		return telemetry.OutcomeNotFound, notFound.Code
	case errors.As(err, &conflict):
		return telemetry.OutcomeConflict, conflict.Code
	default:
		return telemetry.OutcomeError, err.Error()
	}
}

// HandleSessionStart opens a charging session with a fresh id and makes it
// the station's active session, creating a placeholder station if needed.
func (s *Service) HandleSessionStart(ctx context.Context, cmd intake.SessionStart) (intake.Result, error) {
	var result intake.Result
	err := s.store.Update(func(tx *store.Tx) error {
		station := tx.EnsureStation(cmd.StationID)
		session := model.Session{
			ID:                 s.newID(),
			StationID:          station.ID,
			Driver:             cmd.Driver,
			VehicleModel:       cmd.VehicleModel,
			StartedAt:          cmd.Timestamp,
			UpdatedAt:          cmd.Timestamp,
			EnergyDeliveredKwh: cmd.EnergyDeliveredKwh,
			PointsEarned:       cmd.PointsEarned,
			Status:             model.SessionCharging,
		}
		tx.UpsertSession(session)
		result.SessionID = session.ID
		return s.hub.Broadcast(tx, proto.SessionStart{Payload: session}, hub.Options{})
	})
	return result, err
}

// HandleSessionUpdate advances a charging session. Absent figures keep their
// stored values; a terminal status clears the station's active reference.
func (s *Service) HandleSessionUpdate(ctx context.Context, cmd intake.SessionUpdate) (intake.Result, error) {
	err := s.store.Update(func(tx *store.Tx) error {
		session, err := liveSession(tx, cmd.SessionID)
		if err != nil {
			return err
		}
		if cmd.EnergyDeliveredKwh != nil {
			session.EnergyDeliveredKwh = *cmd.EnergyDeliveredKwh
		}
		if cmd.PointsEarned != nil {
			session.PointsEarned = *cmd.PointsEarned
		}
		session.Status = cmd.Status
		session.UpdatedAt = cmd.Timestamp
		tx.UpsertSession(session)
		return s.hub.Broadcast(tx, proto.SessionUpdate{Payload: session}, hub.Options{})
	})
	return intake.Result{}, err
}

// HandleSessionComplete marks a charging session completed and stamps endedAt.
func (s *Service) HandleSessionComplete(ctx context.Context, cmd intake.SessionComplete) (intake.Result, error) {
	err := s.store.Update(func(tx *store.Tx) error {
		session, err := liveSession(tx, cmd.SessionID)
		if err != nil {
			return err
		}
		if cmd.EnergyDeliveredKwh != nil {
			session.EnergyDeliveredKwh = *cmd.EnergyDeliveredKwh
		}
		if cmd.PointsEarned != nil {
			session.PointsEarned = *cmd.PointsEarned
		}
		ended := cmd.Timestamp
		session.Status = model.SessionCompleted
		session.EndedAt = &ended
		session.UpdatedAt = cmd.Timestamp
		tx.UpsertSession(session)
		return s.hub.Broadcast(tx, proto.SessionComplete{Payload: session}, hub.Options{})
	})
	return intake.Result{}, err
}

// liveSession returns the stored session if it exists and is still charging.
func liveSession(tx *store.Tx, id string) (model.Session, error) {
	session, ok := tx.Session(id)
	if !ok {
		return model.Session{}, &NotFoundError{Code: CodeSessionNotFound, ID: id}
	}
	if session.Status.Terminal() {
		return model.Session{}, &ConflictError{Code: CodeSessionTerminal, ID: id}
	}
	return session, nil
}

// HandleStationStatus upserts a station, keeping stored figures the event omits.
func (s *Service) HandleStationStatus(ctx context.Context, cmd intake.StationStatus) (intake.Result, error) {
	err := s.store.Update(func(tx *store.Tx) error {
		station := tx.EnsureStation(cmd.StationID)
		station.Status = cmd.Status
		assign(&station.LivePowerKw, cmd.LivePowerKw)
		assign(&station.DailyEnergyKwh, cmd.DailyEnergyKwh)
		assign(&station.UtilizationPercent, cmd.UtilizationPercent)
		assign(&station.CarbonOffsetKg, cmd.CarbonOffsetKg)
		tx.UpsertStation(station)
		return s.hub.Broadcast(tx, proto.StationStatus{Payload: station}, hub.Options{})
	})
	return intake.Result{}, err
}

func assign(dst *float64, value *float64) {
	if value != nil {
		*dst = *value
	}
}

// HandlePointsPurchase decrements stock by one while any is left. A purchase
// against an exhausted item is still recorded and broadcast.
func (s *Service) HandlePointsPurchase(ctx context.Context, cmd intake.PointsPurchase) (intake.Result, error) {
	var (
		remaining   int
		decremented bool
	)
	err := s.store.Update(func(tx *store.Tx) error {
		item, ok := tx.Item(cmd.ItemID)
		if !ok {
			return &NotFoundError{Code: CodeItemNotFound, ID: cmd.ItemID}
		}
		remaining = item.Inventory
		if remaining > 0 {
			remaining, _ = tx.AdjustInventory(item.ID, -1)
			decremented = true
		}
		left := remaining
		receipt := model.PurchaseReceipt{
			ItemID:             item.ID,
			Wallet:             cmd.Wallet,
			Points:             cmd.Points,
			Timestamp:          cmd.Timestamp,
			RemainingInventory: &left,
		}
		return s.hub.Broadcast(tx, proto.PointsPurchase{Payload: receipt}, hub.Options{})
	})
	if err != nil {
		return intake.Result{}, err
	}

	actor := logging.EntityRef{ID: cmd.ItemID, Kind: logging.EntityKindItem}
	economylog.PurchaseRecorded(ctx, s.publisher, actor, economylog.PurchasePayload{
		Wallet:      cmd.Wallet,
		Points:      cmd.Points,
		Remaining:   remaining,
		Decremented: decremented,
	}, nil)
	if decremented && remaining == 0 {
		economylog.ItemSoldOut(ctx, s.publisher, actor, economylog.SoldOutPayload{Wallet: cmd.Wallet}, nil)
	}
	return intake.Result{}, nil
}

// HandleWorldPlotClaim records a plot claim with generated coordinates,
// power score and vibe unless the event supplies them.
func (s *Service) HandleWorldPlotClaim(ctx context.Context, cmd intake.WorldPlotClaim) (intake.Result, error) {
	err := s.store.Update(func(tx *store.Tx) error {
		plot := model.WorldPlot{
			RegionKey: cmd.RegionKey,
			Owner:     cmd.Wallet,
			Vibe:      cmd.Vibe,
			Boosts:    append([]model.Boost{}, cmd.Boosts...),
		}
		if cmd.Coordinates != nil {
			plot.Coordinates = *cmd.Coordinates
		} else {
			plot.Coordinates = [3]float64{s.random.Float64()*200 - 100, 0, s.random.Float64()*200 - 100}
		}
		if cmd.PowerScore != nil {
			plot.PowerScore = *cmd.PowerScore
		} else {
			plot.PowerScore = math.Round(s.random.Float64()*1000) / 10
		}
		if plot.Vibe == "" {
			plot.Vibe = model.Vibes[s.random.IntN(len(model.Vibes))]
		}
		tx.UpsertWorldPlot(plot)
		return s.hub.Broadcast(tx, proto.WorldPlotClaim{Payload: plot}, hub.Options{})
	})
	return intake.Result{}, err
}

func actorFor(cmd intake.Command, result intake.Result) logging.EntityRef {
	switch c := cmd.(type) {
	case intake.SessionStart:
		return logging.EntityRef{ID: result.SessionID, Kind: logging.EntityKindSession}
	case intake.SessionUpdate:
		return logging.EntityRef{ID: c.SessionID, Kind: logging.EntityKindSession}
	case intake.SessionComplete:
		return logging.EntityRef{ID: c.SessionID, Kind: logging.EntityKindSession}
	case intake.StationStatus:
		return logging.EntityRef{ID: c.StationID, Kind: logging.EntityKindStation}
	case intake.PointsPurchase:
		return logging.EntityRef{ID: c.ItemID, Kind: logging.EntityKindItem}
	case intake.WorldPlotClaim:
		return logging.EntityRef{ID: c.RegionKey, Kind: logging.EntityKindPlot}
	default:
		return logging.EntityRef{Kind: logging.EntityKindUnknown}
	}
}

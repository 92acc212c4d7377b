package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
)

// ValidationError lists the problems found in an ingestion body. FormErrors
// apply to the body as a whole; FieldErrors are keyed by JSON field path.
type ValidationError struct {
	FormErrors  []string            `json:"formErrors"`
	FieldErrors map[string][]string `json:"fieldErrors"`
}

func newValidationError() *ValidationError {
	return &ValidationError{FormErrors: []string{}, FieldErrors: map[string][]string{}}
}

func (e *ValidationError) add(field, message string) {
	if field == "" {
		e.FormErrors = append(e.FormErrors, message)
		return
	}
	e.FieldErrors[field] = append(e.FieldErrors[field], message)
}

func (e *ValidationError) empty() bool {
	return len(e.FormErrors) == 0 && len(e.FieldErrors) == 0
}

// Fields returns the offending field paths in sorted order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func (e *ValidationError) Error() string {
	parts := append([]string(nil), e.FormErrors...)
	for _, field := range e.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.FieldErrors[field], ", ")))
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse validates a raw ingestion body and returns the normalized command.
// now supplies the timestamp for bodies that omit one. Parse has no side
// effects; failures are always *ValidationError.
func Parse(body []byte, now time.Time) (Command, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		verr := newValidationError()
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "type" {
			verr.add("type", "Expected string")
		} else {
			verr.add("", "Expected a JSON object")
		}
		return nil, verr
	}

	stamp := func(ts *float64) int64 {
		if ts != nil {
			return int64(*ts)
		}
		return now.UnixMilli()
	}

	switch proto.Type(head.Type) {
	case proto.TypeSessionStart:
		var p SessionStartPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		return SessionStart{
			StationID:          p.StationID,
			Driver:             p.Driver,
			VehicleModel:       p.VehicleModel,
			EnergyDeliveredKwh: valueOr(p.EnergyDeliveredKwh, 0),
			PointsEarned:       valueOr(p.PointsEarned, 0),
			Timestamp:          stamp(p.Timestamp),
		}, nil
	case proto.TypeSessionUpdate:
		var p SessionUpdatePayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		status := model.SessionCharging
		if p.Status != "" {
			status = model.SessionStatus(p.Status)
		}
		return SessionUpdate{
			SessionID:          p.SessionID,
			StationID:          p.StationID,
			EnergyDeliveredKwh: p.EnergyDeliveredKwh,
			PointsEarned:       p.PointsEarned,
			Status:             status,
			Timestamp:          stamp(p.Timestamp),
		}, nil
	case proto.TypeSessionComplete:
		var p SessionCompletePayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		return SessionComplete{
			SessionID:          p.SessionID,
			StationID:          p.StationID,
			EnergyDeliveredKwh: p.EnergyDeliveredKwh,
			PointsEarned:       p.PointsEarned,
			Timestamp:          stamp(p.Timestamp),
		}, nil
	case proto.TypeStationStatus:
		var p StationStatusPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		return StationStatus{
			StationID:          p.StationID,
			Status:             model.StationStatus(p.Status),
			LivePowerKw:        p.LivePowerKw,
			DailyEnergyKwh:     p.DailyEnergyKwh,
			UtilizationPercent: p.UtilizationPercent,
			CarbonOffsetKg:     p.CarbonOffsetKg,
			Timestamp:          stamp(p.Timestamp),
		}, nil
	case proto.TypePointsPurchase:
		var p PointsPurchasePayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		return PointsPurchase{
			ItemID:    p.ItemID,
			Wallet:    p.Wallet,
			Points:    p.Points,
			Timestamp: stamp(p.Timestamp),
		}, nil
	case proto.TypeWorldPlotClaim:
		var p WorldPlotClaimPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		claim := WorldPlotClaim{
			RegionKey:  p.RegionKey,
			Wallet:     p.Wallet,
			Boosts:     make([]model.Boost, 0, len(p.Boosts)),
			PowerScore: p.PowerScore,
			Vibe:       model.Vibe(p.Vibe),
			Timestamp:  stamp(p.Timestamp),
		}
		for _, boost := range p.Boosts {
			claim.Boosts = append(claim.Boosts, model.Boost{Label: boost.Label, Magnitude: *boost.Magnitude})
		}
		if len(p.Coordinates) == 3 {
			claim.Coordinates = &[3]float64{p.Coordinates[0], p.Coordinates[1], p.Coordinates[2]}
		}
		return claim, nil
	default:
		verr := newValidationError()
		verr.add("type", "Invalid discriminator value. Expected 'session_start' | 'session_update' | 'session_complete' | 'station_status' | 'points_purchase' | 'world_plot_claim'")
		return nil, verr
	}
}

func decode(body []byte, payload any) error {
	verr := newValidationError()
	if err := json.Unmarshal(body, payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			verr.add(typeErr.Field, fmt.Sprintf("Expected %s, received %s", kindName(typeErr.Type), typeErr.Value))
			return verr
		}
		verr.add("", err.Error())
		return verr
	}
	if err := validate.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			verr.add("", err.Error())
			return verr
		}
		for _, fe := range fieldErrs {
			verr.add(fieldPath(fe.Namespace()), message(fe))
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

// kindName names a Go target type the way a JSON client would read it.
func kindName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	default:
		return t.Kind().String()
	}
}

// fieldPath strips the struct name validator prefixes to every namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "gte":
		return "Number must be greater than or equal to " + fe.Param()
	case "gt":
		return "Number must be greater than " + fe.Param()
	case "lte":
		return "Number must be less than or equal to " + fe.Param()
	case "oneof":
		return "Invalid enum value. Expected " + strings.Join(strings.Fields(fe.Param()), " | ")
	case "len":
		return "Expected exactly " + fe.Param() + " items"
	default:
		return "Invalid value (" + fe.Tag() + ")"
	}
}

func valueOr(value *float64, fallback float64) float64 {
	if value == nil {
		return fallback
	}
	return *value
}

package proto

import (
	"encoding/json"
	"fmt"

	"decharge/gateway/internal/model"
)

// Type identifies a live event variant on the wire.
type Type string

// Live event type identifiers.
const (
	TypeBootstrap       Type = "bootstrap"
	TypeSessionStart    Type = "session_start"
	TypeSessionUpdate   Type = "session_update"
	TypeSessionComplete Type = "session_complete"
	TypeStationStatus   Type = "station_status"
	TypePointsPurchase  Type = "points_purchase"
	TypeWorldPlotClaim  Type = "world_plot_claim"
)

// Event is a live event streamed to viewers. The set of implementations is
// closed; consumers dispatch through Accept so that every variant has to be
// handled by a Visitor.
type Event interface {
	Type() Type
	Accept(v Visitor)
	payload() any
}

// Visitor receives one callback per live event variant.
type Visitor interface {
	VisitBootstrap(Bootstrap)
	VisitSessionStart(SessionStart)
	VisitSessionUpdate(SessionUpdate)
	VisitSessionComplete(SessionComplete)
	VisitStationStatus(StationStatus)
	VisitPointsPurchase(PointsPurchase)
	VisitWorldPlotClaim(WorldPlotClaim)
}

// Snapshot is the full-state payload of a bootstrap event.
type Snapshot struct {
	Stations     []model.Station         `json:"stations"`
	Sessions     []model.Session         `json:"sessions"`
	Marketplace  []model.MarketplaceItem `json:"marketplace"`
	World        []model.WorldPlot       `json:"world"`
	RecentEvents EventList               `json:"recentEvents"`
	Dashboard    *model.Dashboard        `json:"dashboard,omitempty"`
}

type Bootstrap struct{ Payload Snapshot }

type SessionStart struct{ Payload model.Session }

type SessionUpdate struct{ Payload model.Session }

type SessionComplete struct{ Payload model.Session }

type StationStatus struct{ Payload model.Station }

type PointsPurchase struct{ Payload model.PurchaseReceipt }

type WorldPlotClaim struct{ Payload model.WorldPlot }

func (Bootstrap) Type() Type       { return TypeBootstrap }
func (SessionStart) Type() Type    { return TypeSessionStart }
func (SessionUpdate) Type() Type   { return TypeSessionUpdate }
func (SessionComplete) Type() Type { return TypeSessionComplete }
func (StationStatus) Type() Type   { return TypeStationStatus }
func (PointsPurchase) Type() Type  { return TypePointsPurchase }
func (WorldPlotClaim) Type() Type  { return TypeWorldPlotClaim }

func (e Bootstrap) Accept(v Visitor)       { v.VisitBootstrap(e) }
func (e SessionStart) Accept(v Visitor)    { v.VisitSessionStart(e) }
func (e SessionUpdate) Accept(v Visitor)   { v.VisitSessionUpdate(e) }
func (e SessionComplete) Accept(v Visitor) { v.VisitSessionComplete(e) }
func (e StationStatus) Accept(v Visitor)   { v.VisitStationStatus(e) }
func (e PointsPurchase) Accept(v Visitor)  { v.VisitPointsPurchase(e) }
func (e WorldPlotClaim) Accept(v Visitor)  { v.VisitWorldPlotClaim(e) }

func (e Bootstrap) payload() any       { return e.Payload }
func (e SessionStart) payload() any    { return e.Payload }
func (e SessionUpdate) payload() any   { return e.Payload }
func (e SessionComplete) payload() any { return e.Payload }
func (e StationStatus) payload() any   { return e.Payload }
func (e PointsPurchase) payload() any  { return e.Payload }
func (e WorldPlotClaim) payload() any  { return e.Payload }

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeError reports a frame that could not be turned into an Event.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode live event: %v", e.Err)
	}
	return fmt.Sprintf("decode live event %q: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode renders an event as a {type, payload} JSON frame.
func Encode(event Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("encode live event: nil event")
	}
	body, err := json.Marshal(event.payload())
	if err != nil {
		return nil, fmt.Errorf("encode live event %q: %w", event.Type(), err)
	}
	return json.Marshal(envelope{Type: event.Type(), Payload: body})
}

// Decode parses a {type, payload} JSON frame. Failures are *DecodeError.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if len(env.Payload) == 0 {
		return nil, &DecodeError{Type: env.Type, Err: fmt.Errorf("missing payload")}
	}

	var (
		event Event
		err   error
	)
	switch env.Type {
	case TypeBootstrap:
		var e Bootstrap
		err = json.Unmarshal(env.Payload, &e.Payload)
		event = e
	case TypeSessionStart:
		var e SessionStart
		err = json.Unmarshal(env.Payload, &e.Payload)
		event = e
	case TypeSessionUpdate:
		var e SessionUpdate
		err = json.Unmarshal(env.Payload, &e.Payload)
		event = e
	case TypeSessionComplete:
		var e SessionComplete
		err = json.Unmarshal(env.Payload, &e.Payload)
		event = e
	case TypeStationStatus:
		var e StationStatus
		err = json.Unmarshal(env.Payload, &e.Payload)
		event = e
	case TypePointsPurchase:
		var e PointsPurchase
		err = json.Unmarshal(env.Payload, &e.Payload)
		event = e
	case TypeWorldPlotClaim:
		var e WorldPlotClaim
		err = json.Unmarshal(env.Payload, &e.Payload)
		event = e
	default:
		return nil, &DecodeError{Type: env.Type, Err: fmt.Errorf("unknown event type")}
	}
	if err != nil {
		return nil, &DecodeError{Type: env.Type, Err: err}
	}
	return event, nil
}

// EventList is a JSON array of live events. Unmarshal skips entries that do
// not decode.
type EventList []Event

func (l EventList) MarshalJSON() ([]byte, error) {
	frames := make([]json.RawMessage, 0, len(l))
	for _, event := range l {
		data, err := Encode(event)
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	return json.Marshal(frames)
}

func (l *EventList) UnmarshalJSON(data []byte) error {
	var frames []json.RawMessage
	if err := json.Unmarshal(data, &frames); err != nil {
		return err
	}
	events := make(EventList, 0, len(frames))
	for _, frame := range frames {
		event, err := Decode(frame)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	*l = events
	return nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
	netlog "decharge/gateway/logging/network"
)

// State is the reconciler's connection state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBootstrapping State = "bootstrapping"
	StateLive          State = "live"
	StateReconnecting  State = "reconnecting"
	StateStopped       State = "stopped"
)

const (
	DefaultReconnectDelay    = 1500 * time.Millisecond
	DefaultDashboardInterval = 20 * time.Second
	DefaultSessionLimit      = 100
)

type ReconcilerConfig struct {
	StreamURL string
	Dialer    *websocket.Dialer
	// BackOff paces reconnect attempts. Returning backoff.Stop ends Run with
	// an error. Defaults to a constant 1.5s.
	BackOff           backoff.BackOff
	DashboardInterval time.Duration
	SessionLimit      int
	Logger            telemetry.Logger
	Publisher         logging.Publisher
}

// Reconciler keeps a Replica in sync with a gateway. Stream frames are
// applied in arrival order by a single reader; every bootstrap frame
// replaces the replica wholesale.
type Reconciler struct {
	api       *Client
	cfg       ReconcilerConfig
	logger    telemetry.Logger
	publisher logging.Publisher
	actor     logging.EntityRef
	reload    chan struct{}

	mu      sync.Mutex
	replica *Replica
	state   State
	// generation counts stream bootstraps. REST results fetched under an
	// older generation are stale and discarded.
	generation uint64

	subMu       sync.Mutex
	subscribers map[int]chan struct{}
	nextSub     int
}

func NewReconciler(api *Client, cfg ReconcilerConfig) *Reconciler {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.BackOff == nil {
		cfg.BackOff = backoff.NewConstantBackOff(DefaultReconnectDelay)
	}
	if cfg.DashboardInterval <= 0 {
		cfg.DashboardInterval = DefaultDashboardInterval
	}
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = DefaultSessionLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Reconciler{
		api:         api,
		cfg:         cfg,
		logger:      logger,
		publisher:   publisher,
		actor:       logging.EntityRef{ID: cfg.StreamURL, Kind: logging.EntityKindViewer},
		reload:      make(chan struct{}, 1),
		replica:     NewReplica(),
		state:       StateUninitialized,
		subscribers: make(map[int]chan struct{}),
	}
}

// Run reads the initial state, streams live events and reconnects until ctx
// is cancelled. It returns nil on cancellation and may be called once.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateUninitialized {
		r.mu.Unlock()
		return errors.New("reconciler already started")
	}
	r.state = StateBootstrapping
	r.mu.Unlock()
	r.notify()

	defer func() {
		r.setState(StateStopped)
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.hydrateLoop(ctx) })
	g.Go(func() error { return r.streamLoop(ctx) })
	g.Go(func() error { return r.dashboardLoop(ctx) })
	return g.Wait()
}

// State returns the current connection state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a copy of the replica.
func (r *Reconciler) Snapshot() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replica.View()
}

// Subscribe returns a channel that receives a value after the replica or
// state changes. Notifications coalesce; read Snapshot after each one.
func (r *Reconciler) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subscribers, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

// Reload requests another round of the initial REST reads.
func (r *Reconciler) Reload() {
	select {
	case r.reload <- struct{}{}:
	default:
	}
}

func (r *Reconciler) notify() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *Reconciler) setState(state State) {
	r.mu.Lock()
	changed := r.state != state
	r.state = state
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

func (r *Reconciler) hydrateLoop(ctx context.Context) error {
	for {
		r.hydrate(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-r.reload:
		}
	}
}

// hydrate applies the REST reads unless a stream bootstrap landed while
// they were in flight.
func (r *Reconciler) hydrate(ctx context.Context) {
	r.mu.Lock()
	generation := r.generation
	r.mu.Unlock()

	initial, err := r.api.Fetch(ctx, r.cfg.SessionLimit)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Printf("initial gateway reads failed: %v", err)
		}
		return
	}

	r.mu.Lock()
	if r.generation != generation {
		r.mu.Unlock()
		netlog.HydrationDiscarded(ctx, r.publisher, r.actor, nil)
		return
	}
	r.replica.Hydrate(initial)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) streamLoop(ctx context.Context) error {
	policy := r.cfg.BackOff
	policy.Reset()
	for attempt := 1; ; attempt++ {
		live, err := r.stream(ctx, attempt)
		if ctx.Err() != nil {
			return nil
		}
		if live {
			policy.Reset()
		}
		r.setState(StateReconnecting)

		delay := policy.NextBackOff()
		netlog.StreamInterrupted(ctx, r.publisher, r.actor, netlog.StreamPayload{
			URL:     r.cfg.StreamURL,
			Attempt: attempt,
			Error:   err.Error(),
			RetryMs: max(delay, 0).Milliseconds(),
		}, nil)
		if delay == backoff.Stop {
			return fmt.Errorf("gateway stream: giving up: %w", err)
		}
		r.logger.Printf("gateway stream interrupted, retrying in %s: %v", delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// stream runs one connection until it fails. live reports whether a
// bootstrap frame arrived on it.
func (r *Reconciler) stream(ctx context.Context, attempt int) (live bool, err error) {
	conn, resp, err := r.cfg.Dialer.DialContext(ctx, r.cfg.StreamURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", r.cfg.StreamURL, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return live, err
		}
		event, err := proto.Decode(data)
		if err != nil {
			payload := netlog.FramePayload{Error: err.Error()}
			var decodeErr *proto.DecodeError
			if errors.As(err, &decodeErr) {
				payload.Type = string(decodeErr.Type)
			}
			netlog.FrameDiscarded(ctx, r.publisher, r.actor, payload, nil)
			continue
		}
		r.apply(event)
		if _, ok := event.(proto.Bootstrap); ok && !live {
			live = true
			netlog.StreamLive(ctx, r.publisher, r.actor, netlog.StreamPayload{URL: r.cfg.StreamURL, Attempt: attempt}, nil)
		}
	}
}

func (r *Reconciler) apply(event proto.Event) {
	r.mu.Lock()
	if _, ok := event.(proto.Bootstrap); ok {
		r.generation++
		r.state = StateLive
	}
	r.replica.Apply(event)
	r.mu.Unlock()
	r.notify()
}

// dashboardLoop polls the aggregate while the stream has not pushed one.
func (r *Reconciler) dashboardLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.DashboardInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		r.mu.Lock()
		pushed := r.replica.DashboardPushed()
		r.mu.Unlock()
		if pushed {
			continue
		}

		dashboard, err := r.api.Dashboard(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Printf("dashboard refresh failed: %v", err)
			}
			continue
		}
		r.mu.Lock()
		if !r.replica.DashboardPushed() {
			r.replica.SetDashboard(dashboard)
		}
		r.mu.Unlock()
		r.notify()
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"decharge/gateway/internal/config"
	"decharge/gateway/internal/feed"
	"decharge/gateway/internal/hub"
	"decharge/gateway/internal/ingest"
	servernet "decharge/gateway/internal/net"
	"decharge/gateway/internal/net/ws"
	"decharge/gateway/internal/observability"
	"decharge/gateway/internal/store"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
	lifecyclelog "decharge/gateway/logging/lifecycle"
	loggingSinks "decharge/gateway/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Logger telemetry.Logger
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Registry defaults to a fresh registry carrying the Go and process
	// collectors.
	Registry *prometheus.Registry
	// Console receives the console sink; defaults to stdout.
	Console io.Writer
	// Ready is called with the bound address once the listener is open.
	Ready func(addr string)
}

// Run serves the gateway until ctx ends, then drains connections and
// closes every subscriber.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	settings, err := config.Load(getenv, telemetryLogger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	server := settings.Server

	sinks, err := buildSinks(server.Logging, console, telemetryLogger)
	if err != nil {
		return err
	}

	router := logging.NewRouter(logging.ClockFunc(time.Now), server.Logging, fallbackLogger, sinks)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := telemetry.NewMetrics(registry)

	s := store.New(server.Catalog, store.WithRecentEvents(server.RecentEvents))
	events := feed.New(telemetryLogger, router)
	h := hub.New(s, hub.Config{
		Buffer:    server.SubscriberBuffer,
		Logger:    telemetryLogger,
		Publisher: router,
		Metrics:   metrics,
		Mirror:    events,
	})
	svc := ingest.New(s, h, ingest.Config{Metrics: metrics, Publisher: router})

	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Store:         s,
		Ingester:      svc,
		Stream:        ws.NewHandler(s, h, ws.HandlerConfig{Logger: telemetryLogger}),
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Observability: observability.FromEnv(getenv, telemetryLogger),
		Logger:        telemetryLogger,
	})

	listener, err := net.Listen("tcp", server.Addr())
	if err != nil {
		events.Close()
		return fmt.Errorf("failed to listen on %s: %w", server.Addr(), err)
	}
	addr := listener.Addr().String()
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	actor := logging.EntityRef{Kind: logging.EntityKindGateway, ID: addr}
	lifecyclelog.GatewayStarted(ctx, router, actor, lifecyclelog.StartedPayload{
		Addr:         addr,
		CatalogItems: len(server.Catalog),
		Sinks:        server.Logging.EnabledSinks,
	}, nil)
	telemetryLogger.Printf("gateway listening on %s", addr)
	if cfg.Ready != nil {
		cfg.Ready(addr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not tracked by the server.
		h.Close()
		if cerr := events.Close(); cerr != nil {
			telemetryLogger.Printf("failed to close event feed: %v", cerr)
		}
		return err
	})

	err = g.Wait()
	reason := "shutdown"
	if err != nil {
		reason = err.Error()
	}
	lifecyclelog.GatewayStopped(context.Background(), router, actor, lifecyclelog.StoppedPayload{Reason: reason}, nil)
	return err
}

// buildSinks opens the enabled sinks. The JSON sink owns its file and closes
// it with the router.
func buildSinks(cfg logging.Config, console io.Writer, logger telemetry.Logger) ([]logging.NamedSink, error) {
	var sinks []logging.NamedSink
	for _, name := range cfg.EnabledSinks {
		switch name {
		case logging.SinkConsole:
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewConsoleSink(console)})
		case logging.SinkJSON:
			if !cfg.WantsJSONFile() {
				logger.Printf("json log sink enabled without LOG_JSON_PATH, skipping")
				continue
			}
			f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open json log %s: %w", cfg.JSON.FilePath, err)
			}
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewJSON(f, cfg.JSON.FlushInterval)})
		default:
			logger.Printf("unknown log sink %q, skipping", name)
		}
	}
	return sinks, nil
}

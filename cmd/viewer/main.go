package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"decharge/gateway/internal/client"
	"decharge/gateway/internal/config"
	"decharge/gateway/internal/model"
	"decharge/gateway/internal/telemetry"
	"decharge/gateway/logging"
	loggingSinks "decharge/gateway/logging/sinks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := telemetry.WrapLogger(log.Default())
	settings, err := config.Load(os.Getenv, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	router := logging.NewRouter(logging.ClockFunc(time.Now), settings.Server.Logging, log.Default(), []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout)},
	})
	defer router.Close(context.Background())

	api, err := client.New(settings.Client.GatewayURL, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		log.Fatalf("%v", err)
	}
	reconciler := client.NewReconciler(api, client.ReconcilerConfig{
		StreamURL: settings.Client.StreamURL,
		BackOff:   backoff.NewConstantBackOff(settings.Client.ReconnectDelay),
		Logger:    logger,
		Publisher: router,
	})

	changes, cancel := reconciler.Subscribe()
	defer cancel()
	go func() {
		for range changes {
			summarize(logger, reconciler.State(), reconciler.Snapshot())
		}
	}()

	logger.Printf("viewing %s", settings.Client.StreamURL)
	if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
}

func summarize(logger telemetry.Logger, state client.State, view client.View) {
	active := 0
	for _, session := range view.Sessions {
		if session.Status == model.SessionCharging {
			active++
		}
	}
	logger.Printf("[%s] stations=%d sessions=%d active=%d items=%d plots=%d events=%d",
		state, len(view.Stations), len(view.Sessions), active, len(view.Marketplace), len(view.World), len(view.Events))
}

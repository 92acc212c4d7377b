package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"decharge/gateway/internal/client"
	"decharge/gateway/internal/config"
	"decharge/gateway/internal/simulator"
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

	logger.Printf("simulating traffic against %s", settings.Client.GatewayURL)
	sim := simulator.New(api, simulator.Config{Logger: logger, Publisher: router})
	if err := sim.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

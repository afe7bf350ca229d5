package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ArsMedicaTech/fhir-sync/bus"
	"github.com/ArsMedicaTech/fhir-sync/cdc"
	"github.com/ArsMedicaTech/fhir-sync/cfg"
	"github.com/ArsMedicaTech/fhir-sync/forward"
	_ "github.com/ArsMedicaTech/fhir-sync/forward/sink"
	fhirgrpc "github.com/ArsMedicaTech/fhir-sync/grpc"
	"github.com/ArsMedicaTech/fhir-sync/httpapi"
	"github.com/ArsMedicaTech/fhir-sync/notify"
	"github.com/ArsMedicaTech/fhir-sync/store"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// shutdownTimeout bounds the graceful drain on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

// run carries the process lifecycle so deferred cleanup survives the
// exit-code plumbing.
func run() int {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("instance_id", cfg.Config.InstanceID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("FHIR Sync - Patient Demographic CDC Pipeline")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()

	// Root context cancels on the first shutdown signal. A second
	// signal kills the process the hard way.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event bus: CDC listener and HTTP ingestion produce, the
	// forwarder is the single consumer.
	eventBus := bus.New(cfg.Config.Bus.Capacity)

	cdcProducer, err := eventBus.Attach("cdc")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to attach CDC producer")
	}
	httpProducer, err := eventBus.Attach("ingestion")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to attach ingestion producer")
	}

	// Shared state behind the sync service.
	var sourceReader store.Reader
	if cfg.Config.Store.Enabled {
		reader, err := store.OpenSourceReader()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open source reader")
		}
		sourceReader = reader
		defer reader.Close()
		log.Info().Msg("Source read-through enabled for patient lookups")
	}
	patientStore := store.New(sourceReader)
	hub := notify.NewHub()

	// Forwarder drains the bus into the store, the watch hub, and the
	// configured sinks.
	forwarder, err := forward.NewForwarder(eventBus.Events(), patientStore, hub, cfg.Config.Sinks)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize forwarder")
		return 1
	}
	forwarder.Start()

	// Sync service over gRPC.
	log.Info().Msg("Initializing gRPC server")
	syncService := fhirgrpc.NewFhirSyncService(patientStore, hub)
	grpcServer := fhirgrpc.NewServer(fhirgrpc.ServerConfig{
		Address:          cfg.Config.GRPC.BindAddress,
		Port:             cfg.Config.GRPC.Port,
		MaxMessageSizeMB: cfg.Config.GRPC.MaxMessageSizeMB,
	}, syncService)
	if err := grpcServer.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start gRPC server")
		return 1
	}

	// HTTP ingestion endpoint.
	httpServer := httpapi.NewServer(
		fmt.Sprintf("%s:%d", cfg.Config.HTTP.BindAddress, cfg.Config.HTTP.Port),
		httpProducer,
	)
	httpErrCh := httpServer.Start()

	// CDC listener.
	cdcErrCh := make(chan error, 1)
	listener, checkpoint, err := buildListener(cdcProducer)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize CDC listener")
		return 1
	}
	if checkpoint != nil {
		defer checkpoint.Close()
	}
	go func() {
		cdcErrCh <- listener.Run(ctx)
	}()

	log.Info().
		Int("grpc_port", cfg.Config.GRPC.Port).
		Int("http_port", cfg.Config.HTTP.Port).
		Str("table", cfg.Config.Database.Table).
		Msg("FHIR sync started")

	// Supervise: the first fatal error or a signal brings the whole
	// process down.
	exitCode := 0
	cdcDone := false
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-cdcErrCh:
		cdcDone = true
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("CDC listener failed")
			exitCode = 1
		}
	case err := <-httpErrCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
			exitCode = 1
		}
	}
	stop()

	// Orderly drain: stop producing, let the forwarder empty the bus,
	// then take down the serving surfaces. The listener is joined
	// before its producer detaches: the last detach closes the bus
	// channel, so no publish may still be in flight.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not finish cleanly")
	}
	if !cdcDone {
		<-cdcErrCh
	}
	cdcProducer.Close()
	httpProducer.Close()
	forwarder.Stop()
	grpcServer.Stop()

	log.Info().Msg("FHIR sync stopped")
	return exitCode
}

// buildListener wires the CDC listener with its mapper and optional
// durable checkpoint.
func buildListener(producer *bus.Producer) (*cdc.Listener, *cdc.Checkpoint, error) {
	mapper := cdc.NewMapper(
		cfg.Config.Database.Table,
		cdc.DefaultColumnMap(),
		cfg.Config.CDC.ResolveColumnNames,
	)

	var checkpoint *cdc.Checkpoint
	if cfg.Config.CDC.CheckpointDir != "" {
		cp, err := cdc.OpenCheckpoint(cfg.Config.CDC.CheckpointDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		checkpoint = cp
	}

	listener, err := cdc.NewListener(mapper, producer, checkpoint)
	if err != nil {
		if checkpoint != nil {
			checkpoint.Close()
		}
		return nil, nil, err
	}
	return listener, checkpoint, nil
}

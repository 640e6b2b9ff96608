package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"radyo/internal/auth"
	"radyo/internal/backend"
	"radyo/internal/cache"
	"radyo/internal/catalog"
	"radyo/internal/config"
	"radyo/internal/console"
	"radyo/internal/database"
	"radyo/internal/history"
	"radyo/internal/ngrok"
	"radyo/internal/playback"
	"radyo/internal/probe"
	"radyo/internal/server"
	"radyo/internal/session"
	"radyo/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	hashToken := flag.String("hash-token", "", "print the bcrypt hash of a token for server.api_token and exit")
	newToken := flag.Bool("generate-token", false, "print a new random API token and its hash, then exit")
	flag.Parse()

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if *newToken || *hashToken != "" {
		if err := printToken(*hashToken); err != nil {
			logger.WithError(err).Fatal("Error creating token")
		}
		return
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	logFile, err := configureLogger(logger, cfg.Logging)
	if err != nil {
		logger.WithError(err).Fatal("Error configuring logging")
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	// Load the station catalog
	stations, err := catalog.New(cfg.Catalog.Path, db, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error loading station catalog")
	}
	defer stations.Close()

	if stations.Len() == 0 {
		logger.WithField("catalog_path", cfg.Catalog.Path).Warn("No stations in catalog")
	}
	if cfg.Catalog.WatchForChanges {
		if err := stations.Watch(); err != nil {
			logger.WithError(err).Warn("Could not watch catalog file, changes need a restart")
		}
	}

	// Optional stream probing in front of the backend
	var prober *probe.Prober
	if cfg.Playback.ProbeStreams {
		probeCache := cache.New[probe.StreamInfo](time.Duration(cfg.Playback.ProbeCacheMinutes)*time.Minute, time.Minute)
		defer probeCache.Close()

		client := &http.Client{Timeout: time.Duration(cfg.Playback.ProbeTimeout) * time.Second}
		prober = probe.New(client, cfg.Playback.ProbeBytes, time.Duration(cfg.Playback.ProbeTimeout)*time.Second, probeCache, logger)
	}
	stations.OnReload(func(list []models.Station) {
		prober.Reset()
		logger.WithField("stations", len(list)).Info("Station catalog reloaded")
	})

	mediaBackend, err := backend.New(cfg.Playback, prober, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error creating playback backend")
	}

	player := playback.NewManager(mediaBackend, logger)
	player.Subscribe(func(snap playback.Snapshot) {
		entry := logger.WithFields(logrus.Fields{
			"phase": snap.Phase.String(),
			"epoch": snap.Epoch,
		})
		if snap.Station != nil {
			entry = entry.WithField("station_id", snap.Station.ID)
		}
		if snap.LastError != nil {
			entry.WithField("error_kind", snap.LastError.Kind.String()).Warn(snap.LastError.Message)
			return
		}
		entry.Debug("Playback state changed")
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := playback.NewMetrics(registry)
	if err != nil {
		logger.WithError(err).Fatal("Error registering metrics")
	}
	player.Subscribe(metrics.Observe)

	recorder := history.NewRecorder(db, 64, logger)
	player.Subscribe(recorder.Observe)

	surfaces := session.NewRegistry(time.Duration(cfg.Server.SurfaceTTL) * time.Second)

	memo := cache.New[bool](10*time.Minute, time.Minute)
	defer memo.Close()
	verifier, err := auth.NewVerifier(cfg.Server.APIToken, memo)
	if err != nil {
		logger.WithError(err).Fatal("Error configuring API authentication")
	}
	if !verifier.Enabled() {
		logger.Warn("API token not set, control API is open to anyone who can reach it")
	}

	tunnel, err := ngrok.NewService(&cfg.Ngrok, logger)
	if err != nil {
		logger.WithError(err).Error("Ngrok disabled")
	}

	radioServer := server.NewRadioServer(cfg, server.Dependencies{
		DB:        db,
		Catalog:   stations,
		Player:    player,
		Surfaces:  surfaces,
		Verifier:  verifier,
		Gatherer:  registry,
		Prober:    prober,
		PublicURL: tunnel.PublicURL,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- radioServer.Start()
	}()

	if err := tunnel.StartTunnel(ctx, "http://"+cfg.GetAddress()); err != nil {
		logger.WithError(err).Error("Failed to start ngrok tunnel")
	}

	consoleDone := make(chan struct{})
	if cfg.Console.Enabled {
		repl := console.New(player, stations, db, surfaces, logger)
		go func() {
			defer close(consoleDone)
			if err := repl.Run(ctx, console.Options{
				Prompt:      cfg.Console.Prompt,
				HistoryFile: cfg.Console.HistoryFile,
				Heartbeat:   time.Duration(cfg.Server.SurfaceTTL) * time.Second / 2,
			}); err != nil {
				logger.WithError(err).Error("Console stopped")
			}
		}()
	}

	// Wait for shutdown
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case <-consoleDone:
		logger.Info("Console closed")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("Control API failed")
		}
	case <-tunnel.Done():
		logger.Warn("Ngrok tunnel closed")
	}

	player.Close()
	if cfg.Console.Enabled {
		cancel()
		<-consoleDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := radioServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down control API")
	}
	if err := tunnel.Stop(); err != nil {
		logger.WithError(err).Warn("Error stopping ngrok tunnel")
	}
	recorder.Close()
}

// configureLogger applies level, format and output from config. The
// returned file, if any, must be closed by the caller.
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) (*os.File, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File == "" {
		return nil, nil
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(file)
	return file, nil
}

// printToken hashes token, generating one first when it is empty
func printToken(token string) error {
	if token == "" {
		generated, err := auth.GenerateToken(24)
		if err != nil {
			return err
		}
		token = generated
		fmt.Println("token:", token)
	}
	if auth.IsHashed(token) {
		return errors.New("token is already a bcrypt hash")
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Println("hash: ", hash)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/minuku/internal/api"
	"github.com/nidhogg/minuku/internal/command"
	"github.com/nidhogg/minuku/internal/config"
	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/gateway"
	"github.com/nidhogg/minuku/internal/generator"
	"github.com/nidhogg/minuku/internal/metrics"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/relay"
	msgrouter "github.com/nidhogg/minuku/internal/router"
	"github.com/nidhogg/minuku/internal/situation"
	pgstore "github.com/nidhogg/minuku/internal/store"
	"github.com/nidhogg/minuku/internal/stream"
	"github.com/nidhogg/minuku/internal/streams"
	"github.com/nidhogg/minuku/internal/watchdog"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/minuku.json"
	}
	cfg, cfgErr := config.Load(cfgPath)
	if errors.Is(cfgErr, fs.ErrNotExist) {
		cfg, cfgErr = config.Default(), nil
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfgErr != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(cfgErr))
	}
	logger.Info("Starting Minuku...", zap.String("config", cfgPath))

	m, err := metrics.New()
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}

	// Core: bus, stream registry, situation registry
	bus := event.NewBus(logger)
	streamMgr := streams.NewManager(bus, m, logger)
	situationMgr := situation.NewManager(streamMgr, bus, m, logger)
	streamMgr.SetRelay(situationMgr)

	mood, location, annotations := registerGenerators(cfg, streamMgr, logger)
	registerSituations(cfg, situationMgr, logger)

	actions := api.NewActionLog(0)
	detach := []func(){actions.Attach(bus)}

	// Initialize PostgreSQL archive
	var archive *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(context.Background(), cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without archive", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background()); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			archive = ps
			detach = append(detach, archive.Attach(bus))
		}
	}

	// Initialize Redis action relay
	var actionRelay *relay.Relay
	if cfg.Database.Redis.URL != "" {
		rl, rErr := relay.New(context.Background(), cfg.Database.Redis.URL,
			cfg.Database.Redis.Stream, cfg.Database.Redis.MaxLen, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, running without action relay", zap.Error(rErr))
		} else {
			actionRelay = rl
			detach = append(detach, actionRelay.Attach(bus))
		}
	}

	// Initialize gateway
	gw := gateway.NewGateway(logger)

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, command.Deps{
		Mood:       mood,
		Location:   location,
		Streams:    streamMgr,
		Situations: situationMgr,
		Status:     gw,
	})

	// Wire message router BEFORE registering adapters (Register captures handler)
	msgRouter := msgrouter.New(gw, commands, annotations, logger)
	gw.SetHandler(msgRouter.Handle)

	restAdapter := gateway.NewRESTAdapter(cfg.Gateway.REST.ReplyTimeout.Std(), logger)
	gw.Register(restAdapter)

	var wsAdapter *gateway.WebSocketAdapter
	if cfg.Gateway.WebSocket.Enabled {
		wsAdapter = gateway.NewWebSocketAdapter(logger)
		gw.Register(wsAdapter)
	}

	if cfg.Gateway.Slack.Enabled {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken,
			cfg.Gateway.Slack.Channel, logger))
	}

	if cfg.Gateway.Discord.Enabled {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.Channel, logger))
	}

	broadcaster := gateway.NewBroadcaster(gw, logger)
	detach = append(detach, broadcaster.Attach(bus))

	gwCtx, gwCancel := context.WithCancel(context.Background())
	if err := gw.ConnectAll(gwCtx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	// No-data watchdog
	var ticker *watchdog.Ticker
	if cfg.Watchdog.Enabled && len(cfg.Watchdog.Thresholds) > 0 {
		thresholds := make(map[record.Type]time.Duration, len(cfg.Watchdog.Thresholds))
		for t, d := range cfg.Watchdog.Thresholds {
			thresholds[record.Type(t)] = d.Std()
		}
		ticker = watchdog.NewTicker(nil, cfg.Watchdog.Interval.Std(), logger)
		ticker.AddListener(watchdog.New(streamMgr, bus, thresholds, time.Now(), logger))
		ticker.Start()
	}

	// Build HTTP handler
	deps := api.Deps{
		Streams:     streamMgr,
		Situations:  situationMgr,
		Bus:         bus,
		Actions:     actions,
		Gateway:     gw,
		Broadcaster: broadcaster,
		REST:        restAdapter,
		WebSocket:   wsAdapter,
		Metrics:     m,
	}
	if archive != nil {
		deps.Archive = archive
	}
	handler := api.NewHandler(deps, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Minuku listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Minuku...")
	if ticker != nil {
		ticker.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	gwCancel()
	gw.Close()
	for _, d := range detach {
		d()
	}
	bus.Close()
	streamMgr.Close()
	if actionRelay != nil {
		actionRelay.Close()
	}
	if archive != nil {
		archive.Close()
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Server.LogLevel != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Server.LogLevel)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// registerGenerators registers the built-in generators and the generic
// streams from config. Generic streams are registered in config order, so a
// derived one must come after what it depends on.
func registerGenerators(cfg *config.Config, mgr *streams.Manager, logger *zap.Logger) (*generator.Mood, *generator.Location, *generator.Generic) {
	sc := cfg.Streams

	mood := generator.NewMood(mgr, sc.CapacityFor(string(record.TypeMood)), logger)
	location := generator.NewLocation(mgr, sc.CapacityFor(string(record.TypeLocation)), logger)

	places := make([]generator.Place, len(cfg.Places))
	for i, p := range cfg.Places {
		places[i] = generator.Place{Name: p.Name, Latitude: p.Latitude, Longitude: p.Longitude, Radius: p.Radius}
	}
	semantic := generator.NewSemanticLocation(mgr, sc.CapacityFor(string(record.TypeSemanticLocation)), places, logger)

	annotations := generator.NewGeneric(msgrouter.TypeAnnotation, stream.FromDevice,
		sc.CapacityFor(string(msgrouter.TypeAnnotation)), nil, mgr, logger)

	for _, reg := range []func() error{mood.Register, location.Register, semantic.Register, annotations.Register} {
		if err := reg(); err != nil {
			logger.Fatal("stream registration failed", zap.Error(err))
		}
	}

	for _, gc := range sc.Generic {
		kind := stream.FromDevice
		if gc.Kind == string(stream.Derived) {
			kind = stream.Derived
		}
		capacity := gc.Capacity
		if capacity < 1 {
			capacity = sc.CapacityFor(gc.Type)
		}
		deps := make([]record.Type, len(gc.DependsOn))
		for i, d := range gc.DependsOn {
			deps[i] = record.Type(d)
		}
		g := generator.NewGeneric(record.Type(gc.Type), kind, capacity, deps, mgr, logger)
		if err := g.Register(); err != nil {
			logger.Fatal("generic stream registration failed", zap.String("type", gc.Type), zap.Error(err))
		}
	}
	return mood, location, annotations
}

func registerSituations(cfg *config.Config, mgr *situation.Manager, logger *zap.Logger) {
	loc, err := cfg.Situations.Location()
	if err != nil {
		logger.Fatal("bad timezone", zap.Error(err))
	}

	mood := situation.NewMoodAnnotationExpected()
	mood.Threshold = cfg.Situations.MoodThreshold
	mood.Location = loc

	list := []situation.Situation{mood}
	if after := cfg.Situations.MoodReminder.Std(); after > 0 {
		list = append(list, situation.MoodReminder{After: after})
	}
	if cfg.Situations.PlaceChanged {
		list = append(list, situation.PlaceChanged{})
	}

	for _, s := range list {
		if err := mgr.Register(s); err != nil {
			logger.Fatal("situation registration failed", zap.String("situation", s.Name()), zap.Error(err))
		}
	}
}

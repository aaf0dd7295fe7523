package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/auth"
	"github.com/ukydev/campus-transit/internal/broker"
	"github.com/ukydev/campus-transit/internal/config"
	"github.com/ukydev/campus-transit/internal/db"
	"github.com/ukydev/campus-transit/internal/editor"
	"github.com/ukydev/campus-transit/internal/events"
	"github.com/ukydev/campus-transit/internal/geofence"
	"github.com/ukydev/campus-transit/internal/handlers"
	"github.com/ukydev/campus-transit/internal/location"
	"github.com/ukydev/campus-transit/internal/middleware"
	"github.com/ukydev/campus-transit/internal/tracking"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer client.Disconnect(context.Background())
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	store := db.NewMongoStore(client.Database(cfg.MongoDB), cfg.SnapshotPollInterval)

	registry := geofence.NewRegistry()
	if err := registry.Load(ctx, store); err != nil {
		return fmt.Errorf("load geofences: %w", err)
	}
	go registry.Sync(ctx, store)

	var mq mqtt.Client
	if cfg.MQTTBroker != "" {
		mq, err = broker.Connect(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTimeout)
		if err != nil {
			return fmt.Errorf("connect to MQTT broker: %w", err)
		}
		defer mq.Disconnect(250)
	}
	topics := broker.Topics{Prefix: cfg.MQTTTopicPrefix}

	source, pusher := locationSource(cfg, mq, topics)
	samplerCfg, err := samplerConfig(cfg)
	if err != nil {
		return err
	}
	manager := tracking.NewManager(ctx, source, registry, tracking.Deps{
		Sampler: tracking.NewSampler(samplerCfg, registry),
		Store:   store,
		Sink:    eventSink(mq, topics),
	})
	defer manager.StopAll()

	c := cron.New(cron.WithLocation(samplerCfg.Location))
	if _, err := tracking.SchedulePathResets(c, cfg.PathResetSchedule, store); err != nil {
		return fmt.Errorf("schedule path resets: %w", err)
	}
	c.Start()
	defer c.Stop()

	stream := handlers.NewVehicleStream()
	go stream.Run(ctx, store.WatchVehicles(ctx))

	authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	router := handlers.NewRouter(handlers.Router{
		Auth:           middleware.NewAuthMiddleware(authService),
		RateLimiter:    middleware.NewRateLimitMiddleware(),
		FixesPerMinute: cfg.RateLimitPerMinute,
		Tokens:         handlers.NewAuthHandler(authService),
		Tracking:       handlers.NewTrackingHandler(manager, pusher),
		Fleet:          handlers.NewFleetHandler(store, registry, cfg.StaleAfter),
		Editor:         handlers.NewEditorHandler(editor.NewPool(store, store, registry)),
		Stream:         stream,
		Health: handlers.Health(func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		}),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":            cfg.Port,
			"location_source": cfg.LocationSource,
		}).Info("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// locationSource picks where fixes come from. Over HTTP the hub is both the
// source and the handler's pusher; over MQTT there is no pusher.
func locationSource(cfg *config.Config, mq mqtt.Client, topics broker.Topics) (location.Source, handlers.FixPusher) {
	if cfg.LocationSource == "mqtt" && mq != nil {
		return location.NewMQTTSource(mq, topics, cfg.MQTTTimeout), nil
	}
	hub := location.NewHub()
	return hub, hub
}

// eventSink logs every event and, with a broker, also publishes it.
func eventSink(mq mqtt.Client, topics broker.Topics) events.Sink {
	sinks := events.Multi{events.LogSink{}}
	if mq != nil {
		sinks = append(sinks, events.NewMQTTSink(mq, topics))
	}
	return sinks
}

func samplerConfig(cfg *config.Config) (tracking.SamplerConfig, error) {
	loc, err := cfg.Location()
	if err != nil {
		return tracking.SamplerConfig{}, err
	}
	sched, err := cfg.ResetSchedule()
	if err != nil {
		return tracking.SamplerConfig{}, err
	}
	return tracking.SamplerConfig{
		GeofenceRadius:      cfg.GeofenceRadiusMeters,
		PowerSavingInterval: cfg.PowerSavingInterval,
		ResetSchedule:       sched,
		Location:            loc,
	}, nil
}

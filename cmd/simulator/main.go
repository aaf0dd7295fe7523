package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/auth"
	"github.com/ukydev/campus-transit/internal/broker"
	"github.com/ukydev/campus-transit/internal/geo"
	"github.com/ukydev/campus-transit/internal/location"
	"github.com/ukydev/campus-transit/internal/models"
)

// simConfig is read from the environment.
type simConfig struct {
	APIURL       string        `env:"API_BASE_URL" envDefault:"http://localhost:8080/api"`
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"default-secret-key-change-in-production"`
	FleetSize    int           `env:"FLEET_SIZE" envDefault:"5"`
	Tick         time.Duration `env:"SIM_TICK" envDefault:"2s"`
	Mode         string        `env:"SIM_MODE" envDefault:"real-time"`
	Transport    string        `env:"SIM_TRANSPORT" envDefault:"http"`
	BreakdownPct float64       `env:"SIM_BREAKDOWN_PCT" envDefault:"0.5"`
	MQTTBroker   string        `env:"MQTT_BROKER"`
	MQTTPrefix   string        `env:"MQTT_TOPIC_PREFIX" envDefault:"transit"`
}

// Fallback area when the API has no routes yet.
var campus = models.Coordinate{Lat: 26.5096, Lng: -100.1769}

var driverNames = []string{"Luis", "Ana", "Marta", "Jorge", "Sofía", "Raúl", "Carmen", "Diego"}

// apiClient talks to the tracker API with a bearer token.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) routes(ctx context.Context, token string) ([]models.Route, error) {
	var routes []models.Route
	if err := c.do(ctx, http.MethodGet, "/routes", token, nil, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func (c *apiClient) startTracking(ctx context.Context, token, routeID, mode string) error {
	return c.do(ctx, http.MethodPost, "/tracking/start", token, map[string]string{
		"route_id": routeID,
		"mode":     mode,
	}, nil)
}

func (c *apiClient) stopTracking(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/tracking/stop", token, nil, nil)
}

func (c *apiClient) setBreakdown(ctx context.Context, token string, broken bool) error {
	return c.do(ctx, http.MethodPut, "/tracking/breakdown", token, map[string]bool{"broken": broken}, nil)
}

// fixSender delivers one fix for a vehicle.
type fixSender interface {
	Send(ctx context.Context, bus *busState, fix location.FixMessage) error
}

type httpSender struct {
	api *apiClient
}

func (s httpSender) Send(ctx context.Context, bus *busState, fix location.FixMessage) error {
	return s.api.do(ctx, http.MethodPost, "/tracking/fix", bus.Token, fix, nil)
}

type mqttSender struct {
	client interface {
		Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	}
	topics  broker.Topics
	timeout time.Duration
}

func (s mqttSender) Send(_ context.Context, bus *busState, fix location.FixMessage) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topics.Fix(bus.VehicleID), 0, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish timed out")
	}
	return token.Error()
}

// busState is one simulated bus driving along its route.
type busState struct {
	VehicleID string
	Driver    string
	Token     string
	Route     models.Route
	SegIndex  int
	SegOffset float64 // meters along the current segment
	Position  models.Coordinate
	SpeedKmh  float64
	Broken    bool
}

func jitter(base models.Coordinate, meters float64) models.Coordinate {
	const metersPerDeg = 111320.0
	dLat := (rand.Float64()*2 - 1) * (meters / metersPerDeg)
	dLng := (rand.Float64()*2 - 1) * (meters / metersPerDeg)
	return models.Coordinate{Lat: base.Lat + dLat, Lng: base.Lng + dLng}
}

// fallbackRoute is a short loop around the campus for when no route exists.
func fallbackRoute() models.Route {
	return models.Route{Points: []models.Coordinate{campus, jitter(campus, 1500), jitter(campus, 1500), campus}}
}

func lerp(a, b models.Coordinate, t float64) models.Coordinate {
	return models.Coordinate{Lat: a.Lat + (b.Lat-a.Lat)*t, Lng: a.Lng + (b.Lng-a.Lng)*t}
}

// step advances the bus by the distance covered in dt, wrapping back to
// the start of its route at the end.
func (b *busState) step(dt time.Duration) {
	pts := b.Route.Points
	if len(pts) < 2 {
		return
	}
	rem := b.SpeedKmh / 3.6 * dt.Seconds()
	for rem > 0 {
		if b.SegIndex >= len(pts)-1 {
			b.SegIndex = 0
			b.SegOffset = 0
			b.Position = pts[0]
		}
		a, c := pts[b.SegIndex], pts[b.SegIndex+1]
		segLen := geo.Distance(a, c)
		left := segLen - b.SegOffset
		if rem >= left {
			b.Position = c
			b.SegIndex++
			b.SegOffset = 0
			rem -= left
			continue
		}
		b.SegOffset += rem
		b.Position = lerp(a, c, b.SegOffset/segLen)
		rem = 0
	}
}

func (b *busState) fix(now time.Time) location.FixMessage {
	lat, lng := b.Position.Lat, b.Position.Lng
	return location.FixMessage{Lat: &lat, Lng: &lng, Timestamp: &now}
}

func simulateBus(ctx context.Context, api *apiClient, sender fixSender, bus *busState, interval time.Duration, breakdownPct float64) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		if rand.Float64()*100 < breakdownPct {
			bus.Broken = !bus.Broken
			if err := api.setBreakdown(ctx, bus.Token, bus.Broken); err != nil {
				log.WithError(err).WithField("vehicle_id", bus.VehicleID).Warn("Failed to toggle breakdown")
			}
		}
		if !bus.Broken {
			bus.SpeedKmh += (rand.Float64()*2 - 1) * 3
			if bus.SpeedKmh < 15 {
				bus.SpeedKmh = 15
			}
			if bus.SpeedKmh > 60 {
				bus.SpeedKmh = 60
			}
			bus.step(interval)
		}

		if err := sender.Send(ctx, bus, bus.fix(time.Now())); err != nil {
			log.WithError(err).WithField("vehicle_id", bus.VehicleID).Error("Failed to send fix")
			continue
		}
		log.WithFields(log.Fields{
			"vehicle_id": bus.VehicleID,
			"lat":        bus.Position.Lat,
			"lng":        bus.Position.Lng,
		}).Debug("Sent fix")
	}
}

// newFleet signs a driver token per bus and spreads the buses over routes.
func newFleet(authService *auth.Service, routes []models.Route, size int) ([]*busState, error) {
	if len(routes) == 0 {
		routes = []models.Route{fallbackRoute()}
	}
	fleet := make([]*busState, 0, size)
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("bus-%d", i+1)
		driver := driverNames[i%len(driverNames)]
		token, err := authService.GenerateToken(id, driver, models.RoleDriver)
		if err != nil {
			return nil, err
		}
		route := routes[i%len(routes)]
		fleet = append(fleet, &busState{
			VehicleID: id,
			Driver:    driver,
			Token:     token,
			Route:     route,
			Position:  route.Points[0],
			SpeedKmh:  25 + rand.Float64()*20,
		})
	}
	return fleet, nil
}

func newSender(cfg simConfig, api *apiClient) (fixSender, func(), error) {
	if cfg.Transport != "mqtt" {
		return httpSender{api: api}, func() {}, nil
	}
	client, err := broker.Connect(cfg.MQTTBroker, "campus-transit-simulator", 10*time.Second)
	if err != nil {
		return nil, nil, err
	}
	return mqttSender{client: client, topics: broker.Topics{Prefix: cfg.MQTTPrefix}, timeout: 5 * time.Second},
		func() { client.Disconnect(250) }, nil
}

func main() {
	_ = godotenv.Load()
	var cfg simConfig
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("Invalid simulator configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authService := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	viewerToken, err := authService.GenerateToken("simulator", "Simulator", models.RoleViewer)
	if err != nil {
		log.WithError(err).Fatal("Failed to sign simulator token")
	}

	api := newAPIClient(cfg.APIURL)
	routes, err := api.routes(ctx, viewerToken)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch routes, driving around campus")
	}
	fleet, err := newFleet(authService, routes, cfg.FleetSize)
	if err != nil {
		log.WithError(err).Fatal("Failed to build fleet")
	}

	sender, closeSender, err := newSender(cfg, api)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	defer closeSender()

	log.WithFields(log.Fields{
		"fleet_size": len(fleet),
		"routes":     len(routes),
		"api_url":    cfg.APIURL,
		"transport":  cfg.Transport,
		"interval":   cfg.Tick,
	}).Info("Starting fleet simulation")

	var wg sync.WaitGroup
	for _, bus := range fleet {
		if err := api.startTracking(ctx, bus.Token, bus.Route.ID, cfg.Mode); err != nil {
			log.WithError(err).WithField("vehicle_id", bus.VehicleID).Error("Failed to start tracking")
			continue
		}
		wg.Add(1)
		go func(bus *busState) {
			defer wg.Done()
			simulateBus(ctx, api, sender, bus, cfg.Tick, cfg.BreakdownPct)
		}(bus)
	}

	<-ctx.Done()
	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, bus := range fleet {
		if err := api.stopTracking(stopCtx, bus.Token); err != nil {
			log.WithError(err).WithField("vehicle_id", bus.VehicleID).Warn("Failed to stop tracking")
		}
	}
	log.Info("Simulation stopped")
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/campus-transit/internal/auth"
	"github.com/ukydev/campus-transit/internal/broker"
	"github.com/ukydev/campus-transit/internal/geo"
	"github.com/ukydev/campus-transit/internal/location"
	"github.com/ukydev/campus-transit/internal/models"
)

func straightRoute() models.Route {
	// Roughly 1.1 km due north.
	return models.Route{ID: "route-1", Points: []models.Coordinate{
		{Lat: 26.50, Lng: -100.17},
		{Lat: 26.51, Lng: -100.17},
	}}
}

func TestBusState_Step(t *testing.T) {
	route := straightRoute()
	bus := &busState{Route: route, Position: route.Points[0], SpeedKmh: 36}

	bus.step(10 * time.Second)
	assert.InDelta(t, 100, geo.Distance(route.Points[0], bus.Position), 1)
	assert.Equal(t, 0, bus.SegIndex)
	assert.InDelta(t, 100, bus.SegOffset, 0.001)
}

func TestBusState_StepWrapsAtRouteEnd(t *testing.T) {
	route := straightRoute()
	segLen := geo.Distance(route.Points[0], route.Points[1])
	bus := &busState{Route: route, Position: route.Points[0], SpeedKmh: 36}

	// 10 m/s for long enough to run off the end by 50 m.
	bus.step(time.Duration((segLen + 50) / 10 * float64(time.Second)))
	assert.Equal(t, 0, bus.SegIndex)
	assert.InDelta(t, 50, geo.Distance(route.Points[0], bus.Position), 1)
}

func TestBusState_StepWithoutRoute(t *testing.T) {
	bus := &busState{Position: campus, SpeedKmh: 40}
	bus.step(time.Minute)
	assert.Equal(t, campus, bus.Position)
}

func TestBusState_Fix(t *testing.T) {
	bus := &busState{Position: models.Coordinate{Lat: 26.5, Lng: -100.1}}
	now := time.Now()
	fix := bus.fix(now).Fix("bus-1")

	require.NotNil(t, fix.Position)
	assert.Equal(t, bus.Position, *fix.Position)
	assert.Equal(t, now, fix.Timestamp)
}

func TestNewFleet(t *testing.T) {
	authService := auth.NewService("sim-secret", time.Hour)
	routes := []models.Route{straightRoute(), {ID: "route-2", Points: []models.Coordinate{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}}}

	fleet, err := newFleet(authService, routes, 3)
	require.NoError(t, err)
	require.Len(t, fleet, 3)
	assert.Equal(t, "bus-1", fleet[0].VehicleID)
	assert.Equal(t, "route-1", fleet[0].Route.ID)
	assert.Equal(t, "route-2", fleet[1].Route.ID)
	assert.Equal(t, "route-1", fleet[2].Route.ID)
	assert.Equal(t, fleet[1].Route.Points[0], fleet[1].Position)

	claims, err := authService.ValidateToken(fleet[2].Token)
	require.NoError(t, err)
	assert.Equal(t, "bus-3", claims.UserID)
	assert.Equal(t, models.RoleDriver, claims.Role)
	assert.Equal(t, fleet[2].Driver, claims.Name)
}

func TestNewFleet_NoRoutes(t *testing.T) {
	fleet, err := newFleet(auth.NewService("sim-secret", time.Hour), nil, 2)
	require.NoError(t, err)
	require.Len(t, fleet, 2)
	assert.Empty(t, fleet[0].Route.ID)
	assert.Equal(t, campus, fleet[0].Position)
}

func TestAPIClient(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/routes":
			json.NewEncoder(w).Encode([]models.Route{straightRoute()})
		case "/api/tracking/start":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "route-1", body["route_id"])
			assert.Equal(t, "power-saving", body["mode"])
			w.WriteHeader(http.StatusCreated)
		case "/api/tracking/breakdown":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	api := newAPIClient(server.URL + "/api")
	ctx := context.Background()

	routes, err := api.routes(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "route-1", routes[0].ID)

	assert.NoError(t, api.startTracking(ctx, "tok", "route-1", "power-saving"))
	assert.NoError(t, api.setBreakdown(ctx, "tok", true))
	assert.Error(t, api.stopTracking(ctx, "tok"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /api/routes",
		"POST /api/tracking/start",
		"PUT /api/tracking/breakdown",
		"POST /api/tracking/stop",
	}, calls)
}

func TestAPIClient_Unreachable(t *testing.T) {
	api := newAPIClient("http://127.0.0.1:1/api")
	_, err := api.routes(context.Background(), "tok")
	assert.Error(t, err)
}

func TestHTTPSender(t *testing.T) {
	got := make(chan location.FixMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tracking/fix", r.URL.Path)
		assert.Equal(t, "Bearer driver-token", r.Header.Get("Authorization"))
		var msg location.FixMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got <- msg
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	bus := &busState{VehicleID: "bus-1", Token: "driver-token", Position: models.Coordinate{Lat: 26.5, Lng: -100.1}}
	sender := httpSender{api: newAPIClient(server.URL + "/api")}
	require.NoError(t, sender.Send(context.Background(), bus, bus.fix(time.Now())))

	msg := <-got
	require.NotNil(t, msg.Lat)
	assert.Equal(t, 26.5, *msg.Lat)
}

func TestHTTPSender_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	bus := &busState{VehicleID: "bus-1", Token: "driver-token"}
	err := httpSender{api: newAPIClient(server.URL)}.Send(context.Background(), bus, bus.fix(time.Now()))
	assert.Error(t, err)
}

type doneToken struct {
	done chan struct{}
	err  error
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type recordingPublisher struct {
	topic   string
	payload []byte
}

func (p *recordingPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.payload = payload.([]byte)
	return newDoneToken(nil)
}

func TestMQTTSender(t *testing.T) {
	pub := &recordingPublisher{}
	sender := mqttSender{client: pub, topics: broker.Topics{Prefix: "transit"}, timeout: time.Second}
	bus := &busState{VehicleID: "bus-4", Position: models.Coordinate{Lat: 26.5, Lng: -100.1}}

	require.NoError(t, sender.Send(context.Background(), bus, bus.fix(time.Now())))
	assert.Equal(t, "transit/vehicles/bus-4/fix", pub.topic)

	var msg location.FixMessage
	require.NoError(t, json.Unmarshal(pub.payload, &msg))
	fix := msg.Fix("bus-4")
	assert.False(t, fix.Malformed())
}

type countingSender struct {
	mu    sync.Mutex
	fixes int
}

func (s *countingSender) Send(context.Context, *busState, location.FixMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes++
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fixes
}

func TestSimulateBus_StopsWithContext(t *testing.T) {
	route := straightRoute()
	bus := &busState{VehicleID: "bus-1", Route: route, Position: route.Points[0], SpeedKmh: 40}
	sender := &countingSender{}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		simulateBus(ctx, newAPIClient("http://127.0.0.1:1"), sender, bus, 20*time.Millisecond, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("simulateBus did not return after cancel")
	}
	assert.Greater(t, sender.count(), 0)
	assert.Greater(t, geo.Distance(route.Points[0], bus.Position), 0.0)
}

func TestNewSender_HTTP(t *testing.T) {
	sender, closeFn, err := newSender(simConfig{Transport: "http"}, newAPIClient("http://x"))
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, httpSender{}, sender)
}

func TestNewSender_MQTTWithoutBroker(t *testing.T) {
	_, _, err := newSender(simConfig{Transport: "mqtt"}, newAPIClient("http://x"))
	assert.Error(t, err)
}

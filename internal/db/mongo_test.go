package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/campus-transit/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

func TestConnectMongo_BadURI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, "mongodb://bad:uri")
	if err == nil {
		t.Error("expected error for bad URI, got nil")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}

func TestMongoStore_NilCollections(t *testing.T) {
	store := &MongoStore{}
	ctx := context.Background()

	assert.ErrorIs(t, store.UpsertVehicle(ctx, "bus-1", models.VehicleUpdate{}), ErrNilCollection)
	_, err := store.FindVehicles(ctx)
	assert.ErrorIs(t, err, ErrNilCollection)
	_, err = store.ClearPathHistories(ctx)
	assert.ErrorIs(t, err, ErrNilCollection)
	_, err = store.InsertRoute(ctx, models.Route{})
	assert.ErrorIs(t, err, ErrNilCollection)
	assert.ErrorIs(t, store.DeleteRoute(ctx, "r1"), ErrNilCollection)
	_, err = store.InsertCheckpoint(ctx, models.Checkpoint{})
	assert.ErrorIs(t, err, ErrNilCollection)
	assert.ErrorIs(t, store.DeleteCheckpoint(ctx, "c1"), ErrNilCollection)
}

func TestBuildVehicleUpdate_Append(t *testing.T) {
	pos := models.Coordinate{Lat: 26.51, Lng: -100.177}
	status := models.StatusOK
	now := time.Now()

	doc, err := buildVehicleUpdate(models.VehicleUpdate{
		Position:   &pos,
		Status:     &status,
		LastUpdate: &now,
		Path:       models.PathAppend,
	})
	require.NoError(t, err)

	set := doc["$set"].(bson.M)
	assert.Equal(t, pos, set["position"])
	assert.Equal(t, "ok", set["status"])
	assert.Equal(t, now, set["last_update"])
	assert.NotContains(t, set, "driver_name")
	assert.NotContains(t, set, "last_checkpoint")
	assert.NotContains(t, set, "path_history")
	assert.Equal(t, bson.M{"path_history": pos}, doc["$push"])
}

func TestBuildVehicleUpdate_Clear(t *testing.T) {
	pos := models.Coordinate{Lat: 1, Lng: 2}
	name := "Centro"
	doc, err := buildVehicleUpdate(models.VehicleUpdate{
		Position:       &pos,
		LastCheckpoint: &name,
		Path:           models.PathClear,
	})
	require.NoError(t, err)

	set := doc["$set"].(bson.M)
	assert.Equal(t, bson.A{}, set["path_history"])
	assert.Equal(t, "Centro", set["last_checkpoint"])
	assert.NotContains(t, doc, "$push")
}

func TestBuildVehicleUpdate_StatusOnly(t *testing.T) {
	status := models.StatusBreakdown
	doc, err := buildVehicleUpdate(models.VehicleUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$set": bson.M{"status": "breakdown"}}, doc)
}

func TestBuildVehicleUpdate_Empty(t *testing.T) {
	_, err := buildVehicleUpdate(models.VehicleUpdate{})
	assert.ErrorIs(t, err, ErrEmptyUpdate)

	// append without a position has nothing to push
	_, err = buildVehicleUpdate(models.VehicleUpdate{Path: models.PathAppend})
	assert.ErrorIs(t, err, ErrEmptyUpdate)
}

func integrationStore(t *testing.T) *MongoStore {
	uri := os.Getenv("MONGO_URI")
	if uri == "" || uri == "uri" {
		t.Skip("MONGO_URI not set or invalid, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	database := client.Database("test_transit")
	require.NoError(t, database.Drop(context.Background()))
	return NewMongoStore(database, 100*time.Millisecond)
}

// Integration test (requires running MongoDB)
func TestMongoStore_VehicleMergeIntegration(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	driver := "Juan"
	status := models.StatusOK
	p1 := models.Coordinate{Lat: 26.51, Lng: -100.177}
	p2 := models.Coordinate{Lat: 26.52, Lng: -100.178}

	require.NoError(t, store.UpsertVehicle(ctx, "bus-1", models.VehicleUpdate{
		DriverName: &driver, Status: &status, Position: &p1, Path: models.PathAppend,
	}))
	require.NoError(t, store.UpsertVehicle(ctx, "bus-1", models.VehicleUpdate{Position: &p2, Path: models.PathAppend}))

	vehicles, err := store.FindVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "Juan", vehicles[0].DriverName)
	assert.Equal(t, p2, vehicles[0].Position)
	assert.Equal(t, []models.Coordinate{p1, p2}, vehicles[0].PathHistory)

	require.NoError(t, store.UpsertVehicle(ctx, "bus-1", models.VehicleUpdate{Position: &p1, Path: models.PathClear}))
	vehicles, err = store.FindVehicles(ctx)
	require.NoError(t, err)
	assert.Empty(t, vehicles[0].PathHistory)
	assert.Equal(t, models.StatusOK, vehicles[0].Status)
}

// Integration test (requires running MongoDB)
func TestMongoStore_RoutesAndCheckpointsIntegration(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	route, err := store.InsertRoute(ctx, models.Route{
		Name:   "Ruta Norte",
		Points: []models.Coordinate{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, route.ID)

	cp, err := store.InsertCheckpoint(ctx, models.Checkpoint{Name: "Centro", Type: models.CheckpointStop, RouteID: route.ID})
	require.NoError(t, err)

	routes, err := store.FindRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, route.Points, routes[0].Points)

	require.NoError(t, store.DeleteCheckpoint(ctx, cp.ID))
	assert.ErrorIs(t, store.DeleteCheckpoint(ctx, cp.ID), ErrNotFound)
	require.NoError(t, store.DeleteRoute(ctx, route.ID))
}

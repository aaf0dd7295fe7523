package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/models"
)

const wsWriteTimeout = 10 * time.Second

// VehicleStream pushes full vehicle snapshots to websocket viewers. New
// viewers receive the latest snapshot right away. Each viewer has its own
// writer, so a slow one only ever falls behind on its own snapshots.
type VehicleStream struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*viewer]struct{}
	last    []byte
}

// viewer holds at most one pending snapshot. A newer snapshot replaces an
// unsent one since each carries the whole fleet.
type viewer struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	goingAway bool
}

// NewVehicleStream creates an empty stream.
func NewVehicleStream() *VehicleStream {
	return &VehicleStream{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*viewer]struct{}),
		last:    []byte("[]"),
	}
}

// ServeHTTP upgrades the connection and registers the viewer.
func (s *VehicleStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, 1), done: make(chan struct{})}
	s.mu.Lock()
	s.clients[v] = struct{}{}
	v.offer(s.last)
	s.mu.Unlock()

	go s.writePump(v)
	go s.readPump(v)
}

// Run broadcasts every snapshot until the channel closes or ctx is done.
func (s *VehicleStream) Run(ctx context.Context, snapshots <-chan []models.Vehicle) {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case vehicles, ok := <-snapshots:
			if !ok {
				s.closeAll()
				return
			}
			s.Broadcast(vehicles)
		}
	}
}

// Broadcast queues vehicles for every viewer without waiting on any of them.
func (s *VehicleStream) Broadcast(vehicles []models.Vehicle) {
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	data, err := json.Marshal(vehicles)
	if err != nil {
		log.WithError(err).Error("Failed to encode vehicle snapshot")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = data
	for v := range s.clients {
		v.offer(data)
	}
}

// Clients returns the number of connected viewers.
func (s *VehicleStream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// offer must be called with the stream's mutex held so only the writer can
// drain send between the two steps.
func (v *viewer) offer(data []byte) {
	select {
	case <-v.send:
	default:
	}
	v.send <- data
}

// remove unregisters v and stops its writer. Callers hold s.mu.
func (s *VehicleStream) remove(v *viewer, goingAway bool) {
	if _, ok := s.clients[v]; !ok {
		return
	}
	delete(s.clients, v)
	v.goingAway = goingAway
	close(v.done)
}

func (s *VehicleStream) writePump(v *viewer) {
	defer v.conn.Close()
	for {
		select {
		case data := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("Dropping websocket viewer")
				s.mu.Lock()
				s.remove(v, false)
				s.mu.Unlock()
				return
			}
		case <-v.done:
			s.mu.Lock()
			goingAway := v.goingAway
			s.mu.Unlock()
			if goingAway {
				v.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
			}
			return
		}
	}
}

func (s *VehicleStream) readPump(v *viewer) {
	defer func() {
		s.mu.Lock()
		s.remove(v, false)
		s.mu.Unlock()
	}()
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *VehicleStream) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for v := range s.clients {
		s.remove(v, true)
	}
}

package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/db"
	"github.com/ukydev/campus-transit/internal/events"
	"github.com/ukydev/campus-transit/internal/location"
	"github.com/ukydev/campus-transit/internal/models"
)

var (
	ErrAcquisition     = errors.New("location source could not be acquired")
	ErrAlreadyTracking = errors.New("vehicle is already tracking")
	ErrNoSession       = errors.New("no tracking session for vehicle")
	ErrUnknownRoute    = errors.New("unknown route")
)

// SessionStatus is the lifecycle state of a tracking session.
type SessionStatus string

const (
	StatusIdle     SessionStatus = "idle"
	StatusTracking SessionStatus = "tracking"
)

// SessionConfig is what the driver chooses when enabling tracking.
type SessionConfig struct {
	VehicleID  string `json:"vehicle_id"`
	DriverName string `json:"driver_name"`
	RouteID    string `json:"route_id,omitempty"`
	Mode       Mode   `json:"mode"`
	Breakdown  bool   `json:"breakdown"`
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Sampler *Sampler
	Store   db.VehicleStore
	Sink    events.Sink
	Log     *log.Entry
	Now     func() time.Time
	NewID   func() string
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = events.Nop{}
	}
	if d.Log == nil {
		d.Log = log.NewEntry(log.StandardLogger())
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// Session is one vehicle's tracking session. Fixes are consumed from the
// acquired stream one at a time; vehicle writes are queued and applied in
// order by a background writer, never awaited by the fix loop.
type Session struct {
	deps Deps
	log  *log.Entry

	mu       sync.Mutex
	state    State
	status   SessionStatus
	accepted bool
	stream   location.Stream
	cancel   context.CancelFunc
	loopDone chan struct{}

	writes   sync.WaitGroup
	wmu      sync.Mutex
	queue    []pendingWrite
	flushing bool
}

type pendingWrite struct {
	ctx    context.Context
	update models.VehicleUpdate
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig, deps Deps) (*Session, error) {
	if cfg.VehicleID == "" {
		return nil, db.ErrMissingVehicle
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	deps = deps.withDefaults()
	return &Session{
		deps:   deps,
		log:    deps.Log.WithField("vehicle_id", cfg.VehicleID),
		status: StatusIdle,
		state: State{
			VehicleID:  cfg.VehicleID,
			DriverName: cfg.DriverName,
			RouteID:    cfg.RouteID,
			Breakdown:  cfg.Breakdown,
			Mode:       mode,
		},
	}, nil
}

// Start acquires the vehicle's location stream and begins processing fixes.
// An acquisition failure leaves the session idle and is not retried.
func (s *Session) Start(ctx context.Context, src location.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusTracking {
		return ErrAlreadyTracking
	}

	stream, err := src.Acquire(ctx, s.state.VehicleID)
	if err != nil {
		s.log.WithError(err).Warn("Location source acquisition failed")
		return fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.state.LastAccepted = time.Time{}
	s.state.LastCheckpointID = ""
	s.state.guarded = nil
	s.state.lastResetSlot = time.Time{}
	s.accepted = false
	s.status = StatusTracking
	s.stream = stream
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	go s.run(loopCtx, stream, s.loopDone)

	s.log.WithFields(log.Fields{
		"route_id": s.state.RouteID,
		"mode":     s.state.Mode,
	}).Info("Tracking started")
	return nil
}

// Stop returns the session to idle. No fix is processed after Stop returns;
// writes already in flight are left to finish.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.status != StatusTracking {
		s.mu.Unlock()
		return
	}
	s.status = StatusIdle
	s.stream.Close()
	s.cancel()
	done := s.loopDone
	s.mu.Unlock()

	<-done
	s.log.Info("Tracking stopped")
}

func (s *Session) run(ctx context.Context, stream location.Stream, done chan struct{}) {
	defer close(done)
	for {
		select {
		case fix, ok := <-stream.Fixes():
			if !ok {
				s.markIdle(stream)
				return
			}
			s.handleFix(ctx, fix)
		case <-stream.Done():
			s.markIdle(stream)
			return
		case <-ctx.Done():
			s.markIdle(stream)
			return
		}
	}
}

// markIdle handles the source going away underneath a running session.
func (s *Session) markIdle(stream location.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != stream || s.status != StatusTracking {
		return
	}
	s.status = StatusIdle
	stream.Close()
	s.cancel()
	s.log.Warn("Location source closed, tracking stopped")
}

// handleFix runs one fix through the sampler, starting the write and
// emitting the checkpoint event it calls for.
func (s *Session) handleFix(ctx context.Context, fix models.Fix) Decision {
	if fix.Malformed() {
		s.log.Debug("Dropping malformed fix")
		return Decision{}
	}

	s.mu.Lock()
	if s.status != StatusTracking {
		s.mu.Unlock()
		return Decision{}
	}
	at := fix.Timestamp
	if at.IsZero() {
		at = s.deps.Now()
	}
	d := s.deps.Sampler.Decide(&s.state, *fix.Position, at)
	st := s.state
	if d.Write {
		s.accepted = true
	}
	s.mu.Unlock()

	if !d.Write {
		return d
	}
	s.write(ctx, d.Update(st))
	if d.ResetPath {
		s.log.WithField("at", at).Info("Path history reset")
	}
	if d.Checkpoint != nil {
		s.deps.Sink.CheckpointReached(ctx, models.CheckpointReachedEvent{
			ID:             s.deps.NewID(),
			VehicleID:      st.VehicleID,
			CheckpointID:   d.Checkpoint.ID,
			CheckpointName: d.Checkpoint.Name,
			Timestamp:      at,
		})
	}
	return d
}

// write queues update for the background writer. Writes reach the store in
// the order they were queued; failures are logged and dropped.
func (s *Session) write(ctx context.Context, update models.VehicleUpdate) {
	s.writes.Add(1)
	s.wmu.Lock()
	s.queue = append(s.queue, pendingWrite{ctx: context.WithoutCancel(ctx), update: update})
	if s.flushing {
		s.wmu.Unlock()
		return
	}
	s.flushing = true
	s.wmu.Unlock()
	go s.flush()
}

// flush drains the queue one write at a time and exits once it is empty.
func (s *Session) flush() {
	for {
		s.wmu.Lock()
		if len(s.queue) == 0 {
			s.flushing = false
			s.wmu.Unlock()
			return
		}
		w := s.queue[0]
		s.queue[0] = pendingWrite{}
		s.queue = s.queue[1:]
		s.wmu.Unlock()

		if err := s.deps.Store.UpsertVehicle(w.ctx, s.state.VehicleID, w.update); err != nil {
			s.log.WithError(err).Error("Failed to write vehicle state")
		}
		s.writes.Done()
	}
}

// SetBreakdown toggles the breakdown flag and emits a BreakdownChanged event.
// Once the session has written a position, the new status is written at once.
func (s *Session) SetBreakdown(ctx context.Context, broken bool) {
	s.mu.Lock()
	if s.state.Breakdown == broken {
		s.mu.Unlock()
		return
	}
	s.state.Breakdown = broken
	live := s.status == StatusTracking && s.accepted
	s.mu.Unlock()

	now := s.deps.Now()
	if live {
		status := models.StatusFor(broken)
		s.write(ctx, models.VehicleUpdate{Status: &status, LastUpdate: &now})
	}
	s.log.WithField("broken", broken).Info("Breakdown flag changed")
	s.deps.Sink.BreakdownChanged(ctx, models.BreakdownChangedEvent{
		ID:        s.deps.NewID(),
		VehicleID: s.state.VehicleID,
		Broken:    broken,
		Timestamp: now,
	})
}

// SetMode switches the sampling mode. It takes effect on the next fix.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Mode = m
}

// SetRoute reassigns the vehicle to routeID (empty for none). Checkpoint
// scope follows on the next fix; the assignment itself is written at once
// when the session is live.
func (s *Session) SetRoute(ctx context.Context, routeID string) {
	s.mu.Lock()
	if s.state.RouteID == routeID {
		s.mu.Unlock()
		return
	}
	s.state.RouteID = routeID
	live := s.status == StatusTracking && s.accepted
	s.mu.Unlock()

	if live {
		s.write(ctx, models.VehicleUpdate{RouteID: &routeID})
	}
	s.log.WithField("route_id", routeID).Info("Route changed")
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports whether the session is tracking.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Wait blocks until every write started so far has finished.
func (s *Session) Wait() {
	s.writes.Wait()
}

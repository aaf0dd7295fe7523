// Package tracking turns raw GPS fixes into vehicle state writes and
// checkpoint events.
package tracking

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ukydev/campus-transit/internal/geo"
	"github.com/ukydev/campus-transit/internal/models"
)

// Mode is the upload policy of a tracking session.
type Mode string

const (
	ModeRealTime    Mode = "real-time"
	ModePowerSaving Mode = "power-saving"
)

// ParseMode validates a sampling mode name. Empty means real-time.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRealTime:
		return ModeRealTime, nil
	case ModePowerSaving:
		return ModePowerSaving, nil
	default:
		return "", fmt.Errorf("unknown sampling mode %q", s)
	}
}

// DefaultResetSchedule clears path histories at 12:00 and 15:00.
const DefaultResetSchedule = "0 12,15 * * *"

// SamplerConfig tunes the sampling policy.
type SamplerConfig struct {
	GeofenceRadius      float64 // meters
	PowerSavingInterval time.Duration
	// ResetSchedule marks the minutes in which a write clears the path
	// history. Nil disables resets.
	ResetSchedule cron.Schedule
	Location      *time.Location
}

// DefaultSamplerConfig returns the stock policy: 50 m geofences, 30 s
// power-saving interval, resets at 12:00 and 15:00 local time.
func DefaultSamplerConfig() SamplerConfig {
	sched, _ := cron.ParseStandard(DefaultResetSchedule)
	return SamplerConfig{
		GeofenceRadius:      50,
		PowerSavingInterval: 30 * time.Second,
		ResetSchedule:       sched,
		Location:            time.Local,
	}
}

// CheckpointSource scopes checkpoints to a route.
type CheckpointSource interface {
	CheckpointsFor(routeID string) []models.Checkpoint
}

// State is the per-session memory the sampler reads and advances.
type State struct {
	VehicleID  string
	DriverName string
	RouteID    string
	Breakdown  bool
	Mode       Mode

	LastAccepted time.Time
	// LastCheckpointID is the most recent hit while the vehicle is still
	// inside it.
	LastCheckpointID string

	// guarded holds every checkpoint the vehicle is dwelling in and has
	// already fired. Rebuilt on each fix, never mutated in place.
	guarded       []string
	lastResetSlot time.Time
}

// Decision is the outcome of sampling one fix.
type Decision struct {
	Write      bool
	ResetPath  bool
	Checkpoint *models.Checkpoint
	Position   models.Coordinate
	At         time.Time
}

// Update builds the partial vehicle record for a write decision.
func (d Decision) Update(st State) models.VehicleUpdate {
	at := d.At
	pos := d.Position
	status := models.StatusFor(st.Breakdown)
	route := st.RouteID
	u := models.VehicleUpdate{
		Position:   &pos,
		LastUpdate: &at,
		Status:     &status,
		RouteID:    &route,
		Path:       models.PathAppend,
	}
	if st.DriverName != "" {
		driver := st.DriverName
		u.DriverName = &driver
	}
	if d.ResetPath {
		u.Path = models.PathClear
	}
	if d.Checkpoint != nil {
		name := d.Checkpoint.Name
		u.LastCheckpoint = &name
		u.LastCheckpointAt = &at
	}
	return u
}

// Sampler decides, fix by fix, whether to persist and whether a checkpoint fired.
type Sampler struct {
	cfg         SamplerConfig
	checkpoints CheckpointSource
}

// NewSampler creates a sampler reading checkpoints from the given source.
func NewSampler(cfg SamplerConfig, checkpoints CheckpointSource) *Sampler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Sampler{cfg: cfg, checkpoints: checkpoints}
}

// Decide evaluates one fix taken at `at` and advances st accordingly.
//
// A geofence hit always forces a write. Otherwise real-time mode writes every
// fix and power-saving mode writes once the interval since the last accepted
// write has elapsed. The first write inside a reset minute clears the path.
func (s *Sampler) Decide(st *State, pos models.Coordinate, at time.Time) Decision {
	d := Decision{Position: pos, At: at}

	if hit := s.geofence(st, pos); hit != nil {
		d.Checkpoint = hit
		d.Write = true
	} else if st.Mode == ModePowerSaving {
		d.Write = st.LastAccepted.IsZero() || at.Sub(st.LastAccepted) >= s.cfg.PowerSavingInterval
	} else {
		d.Write = true
	}

	if !d.Write {
		return d
	}
	st.LastAccepted = at
	if slot, ok := s.resetSlot(at); ok && !slot.Equal(st.lastResetSlot) {
		st.lastResetSlot = slot
		d.ResetPath = true
	}
	return d
}

// geofence returns the nearest in-scope checkpoint within the radius that
// has not fired during the current dwell. A checkpoint stays guarded until a
// fix lands outside its radius or it drops out of the route's scope.
func (s *Sampler) geofence(st *State, pos models.Coordinate) *models.Checkpoint {
	var best *models.Checkpoint
	bestDist := math.Inf(1)
	var guarded []string

	for _, c := range s.checkpoints.CheckpointsFor(st.RouteID) {
		dist := geo.Distance(pos, c.Position)
		inside := dist < s.cfg.GeofenceRadius
		if slices.Contains(st.guarded, c.ID) {
			if inside {
				guarded = append(guarded, c.ID)
			}
			continue
		}
		if inside && dist < bestDist {
			hit := c
			best = &hit
			bestDist = dist
		}
	}
	if best != nil {
		guarded = append(guarded, best.ID)
		st.LastCheckpointID = best.ID
	} else if !slices.Contains(guarded, st.LastCheckpointID) {
		st.LastCheckpointID = ""
	}
	st.guarded = guarded
	return best
}

// resetSlot reports the reset minute containing at, if any.
func (s *Sampler) resetSlot(at time.Time) (time.Time, bool) {
	if s.cfg.ResetSchedule == nil {
		return time.Time{}, false
	}
	local := at.In(s.cfg.Location)
	minute := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), 0, 0, s.cfg.Location)
	if s.cfg.ResetSchedule.Next(minute.Add(-time.Second)).Equal(minute) {
		return minute, true
	}
	return time.Time{}, false
}

package session

import (
	"sync"
	"time"

	"github.com/shaunagostinho/obd2dash/internal/elm"
)

// maxHistory bounds the in-memory snapshot history (~55 min at 1 Hz).
const maxHistory = 3300

// Trip summarizes one drive since the last reset.
type Trip struct {
	Started    time.Time `json:"started"`
	Samples    int       `json:"samples"`
	DistanceKm float64   `json:"distanceKm"`
	MaxSpeed   float64   `json:"maxSpeed"`
	AvgSpeed   float64   `json:"avgSpeed"`
	MaxRPM     float64   `json:"maxRpm"`
	MaxCoolant float64   `json:"maxCoolant"`
	ElapsedSec float64   `json:"elapsedSec"`
}

// Session accumulates snapshots from the realtime loop: a bounded history
// for export and running trip aggregates. Distance is integrated from
// vehicle speed between consecutive samples.
type Session struct {
	mu      sync.Mutex
	history []*elm.Snapshot
	trip    Trip

	lastTime  time.Time
	lastSpeed float64
	speedSum  float64
	speedN    int
}

func New() *Session {
	return &Session{trip: Trip{Started: time.Now()}}
}

// Add folds one snapshot into the history and trip aggregates.
func (s *Session) Add(snap *elm.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, snap)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}

	s.trip.Samples++
	s.trip.ElapsedSec = snap.Time.Sub(s.trip.Started).Seconds()

	if v := snap.Values["SPEED"]; v != nil {
		speed := *v
		if !s.lastTime.IsZero() {
			dt := snap.Time.Sub(s.lastTime).Hours()
			// Trapezoidal integration of km/h over hours.
			s.trip.DistanceKm += (speed + s.lastSpeed) / 2 * dt
		}
		s.lastTime = snap.Time
		s.lastSpeed = speed
		s.speedSum += speed
		s.speedN++
		if speed > s.trip.MaxSpeed {
			s.trip.MaxSpeed = speed
		}
		if s.speedN > 0 {
			s.trip.AvgSpeed = s.speedSum / float64(s.speedN)
		}
	}
	if v := snap.Values["RPM"]; v != nil && *v > s.trip.MaxRPM {
		s.trip.MaxRPM = *v
	}
	if v := snap.Values["COOLANT_TEMP"]; v != nil && *v > s.trip.MaxCoolant {
		s.trip.MaxCoolant = *v
	}
}

// Trip returns a copy of the current trip aggregates.
func (s *Session) Trip() Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trip
}

// Reset clears the trip aggregates and history and returns the final trip.
func (s *Session) Reset() Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := s.trip
	s.history = nil
	s.trip = Trip{Started: time.Now()}
	s.lastTime = time.Time{}
	s.lastSpeed = 0
	s.speedSum = 0
	s.speedN = 0
	return done
}

// History returns the recorded snapshots, oldest first.
func (s *Session) History() []*elm.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*elm.Snapshot, len(s.history))
	copy(out, s.history)
	return out
}

// Latest returns the most recent snapshot, or nil before the first sample.
func (s *Session) Latest() *elm.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

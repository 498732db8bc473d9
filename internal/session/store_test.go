package session

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOdometer(t *testing.T) {
	s := openTestStore(t)

	km, err := s.Odometer()
	if err != nil || km != 0 {
		t.Fatalf("fresh odometer = %v (err %v), want 0", km, err)
	}

	if _, err := s.AddDistance(12.5); err != nil {
		t.Fatalf("AddDistance: %v", err)
	}
	total, err := s.AddDistance(7.5)
	if err != nil {
		t.Fatalf("AddDistance: %v", err)
	}
	if math.Abs(total-20) > 1e-9 {
		t.Errorf("total = %v, want 20", total)
	}

	km, err = s.Odometer()
	if err != nil || math.Abs(km-20) > 1e-9 {
		t.Errorf("Odometer = %v (err %v), want 20", km, err)
	}
}

func TestStoreTrips(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		trip := Trip{
			Started:    base.Add(time.Duration(i) * time.Hour),
			Samples:    100 + i,
			DistanceKm: float64(i) * 10,
		}
		if err := s.SaveTrip(trip); err != nil {
			t.Fatalf("SaveTrip: %v", err)
		}
	}

	trips, err := s.Trips(2)
	if err != nil {
		t.Fatalf("Trips: %v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("got %d trips, want 2", len(trips))
	}
	// Newest first.
	if !trips[0].Started.After(trips[1].Started) {
		t.Errorf("order wrong: %v before %v", trips[0].Started, trips[1].Started)
	}
	if trips[0].DistanceKm != 20 {
		t.Errorf("newest trip distance = %v, want 20", trips[0].DistanceKm)
	}
}

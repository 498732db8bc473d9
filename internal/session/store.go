package session

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	odoBucket  = "odometer"
	tripBucket = "trips"
	odoKey     = "total_km"
)

// Store persists the lifetime odometer and completed trip summaries across
// restarts in a single bbolt file.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the database and its buckets.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(odoBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(tripBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error { return s.db.Close() }

// Odometer returns the accumulated lifetime distance in km.
func (s *Store) Odometer() (float64, error) {
	var km float64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(odoBucket)).Get([]byte(odoKey))
		if len(v) == 8 {
			km = math.Float64frombits(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return km, err
}

// AddDistance adds km to the lifetime odometer and returns the new total.
func (s *Store) AddDistance(km float64) (float64, error) {
	var total float64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(odoBucket))
		if v := b.Get([]byte(odoKey)); len(v) == 8 {
			total = math.Float64frombits(binary.BigEndian.Uint64(v))
		}
		total += km
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(total))
		return b.Put([]byte(odoKey), buf)
	})
	return total, err
}

// SaveTrip records a completed trip summary keyed by its start time.
func (s *Store) SaveTrip(t Trip) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(t.Started.UTC().Format(time.RFC3339))
		return tx.Bucket([]byte(tripBucket)).Put(key, data)
	})
}

// Trips returns the most recent saved trips, newest first, up to limit.
func (s *Store) Trips(limit int) ([]Trip, error) {
	var out []Trip
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(tripBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var t Trip
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("trip %s: %w", k, err)
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

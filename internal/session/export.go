package session

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shaunagostinho/obd2dash/internal/elm"
)

// WriteCSV renders snapshots as CSV: one row per snapshot, a timestamp
// column followed by one column per sensor key. Missing values stay empty.
func WriteCSV(w io.Writer, keys []string, snaps []*elm.Snapshot) error {
	cw := csv.NewWriter(w)

	header := append([]string{"timestamp"}, keys...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, snap := range snaps {
		row := make([]string, 1+len(keys))
		row[0] = snap.Time.Format(time.RFC3339Nano)
		for i, k := range keys {
			if v := snap.Values[k]; v != nil {
				row[i+1] = fmt.Sprintf("%g", *v)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON renders snapshots as a JSON array.
func WriteJSON(w io.Writer, snaps []*elm.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snaps)
}

// Recorder streams snapshots to CSV files on disk with automatic rotation.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	keys     []string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// RecorderConfig holds on-disk logging configuration.
type RecorderConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const maxRowsPerFile = 100_000

// NewRecorder creates a recorder writing the given sensor columns.
func NewRecorder(cfg RecorderConfig, keys []string) *Recorder {
	if cfg.Path == "" {
		cfg.Path = "/var/log/obd2dash"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 100*time.Millisecond {
		interval = time.Second
	}
	return &Recorder{
		dir:      cfg.Path,
		keys:     keys,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled toggles recording at runtime.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

// IsEnabled returns whether recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record writes one snapshot if the minimum interval has elapsed.
func (r *Recorder) Record(snap *elm.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || snap == nil {
		return
	}
	now := snap.Time
	if now.Sub(r.lastTs) < r.interval {
		return
	}
	r.lastTs = now

	if r.writer == nil || r.rows >= maxRowsPerFile {
		if err := r.rotateFile(now); err != nil {
			log.Printf("[recorder] rotate failed: %v", err)
			return
		}
	}

	row := make([]string, 1+len(r.keys))
	row[0] = now.Format(time.RFC3339Nano)
	for i, k := range r.keys {
		if v := snap.Values[k]; v != nil {
			row[i+1] = fmt.Sprintf("%g", *v)
		}
	}
	if err := r.writer.Write(row); err != nil {
		log.Printf("[recorder] write failed: %v", err)
		return
	}
	r.writer.Flush()
	r.rows++
}

// Close flushes and closes the current log file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("obd2_%s.csv", now.Format("2006-01-02_150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(append([]string{"timestamp"}, r.keys...)); err != nil {
		return err
	}
	r.writer.Flush()
	log.Printf("[recorder] opened %s", path)
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

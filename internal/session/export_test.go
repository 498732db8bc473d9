package session

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shaunagostinho/obd2dash/internal/elm"
)

func exportSnaps() []*elm.Snapshot {
	rpm := 748.0
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []*elm.Snapshot{
		{Time: ts, Values: map[string]*float64{"RPM": &rpm, "SPEED": nil}},
		{Time: ts.Add(time.Second), Values: map[string]*float64{"RPM": nil, "SPEED": nil}},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf strings.Builder
	if err := WriteCSV(&buf, []string{"RPM", "SPEED"}, exportSnaps()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][1] != "RPM" || rows[0][2] != "SPEED" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "748" {
		t.Errorf("RPM cell = %q, want 748", rows[1][1])
	}
	if rows[1][2] != "" || rows[2][1] != "" {
		t.Error("missing values must render as empty cells")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf strings.Builder
	if err := WriteJSON(&buf, exportSnaps()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var out []struct {
		Timestamp time.Time           `json:"timestamp"`
		Values    map[string]*float64 `json:"values"`
	}
	if err := json.Unmarshal([]byte(buf.String()), &out); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("entries = %d, want 2", len(out))
	}
	if v := out[0].Values["RPM"]; v == nil || *v != 748 {
		t.Errorf("RPM = %v, want 748", v)
	}
	if out[0].Values["SPEED"] != nil {
		t.Error("nil value must survive the round trip as null")
	}
}

func TestRecorderWritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(RecorderConfig{Enabled: true, Path: dir, IntervalMs: 100}, []string{"RPM"})
	defer rec.Close()

	rpm := 2000.0
	ts := time.Now()
	rec.Record(&elm.Snapshot{Time: ts, Values: map[string]*float64{"RPM": &rpm}})
	// Inside the minimum interval: dropped.
	rec.Record(&elm.Snapshot{Time: ts.Add(10 * time.Millisecond), Values: map[string]*float64{"RPM": &rpm}})
	rec.Record(&elm.Snapshot{Time: ts.Add(200 * time.Millisecond), Values: map[string]*float64{"RPM": &rpm}})
	rec.Close()

	if rec.rows != 2 {
		t.Errorf("rows written = %d, want 2 (interval throttling)", rec.rows)
	}
}

func TestRecorderDisabled(t *testing.T) {
	rec := NewRecorder(RecorderConfig{Enabled: false, Path: t.TempDir()}, []string{"RPM"})
	rpm := 1.0
	rec.Record(&elm.Snapshot{Time: time.Now(), Values: map[string]*float64{"RPM": &rpm}})
	if rec.file != nil {
		t.Error("disabled recorder opened a file")
	}
}

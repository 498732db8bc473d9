package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/obd2dash/internal/elm"
	"github.com/shaunagostinho/obd2dash/internal/obd"
)

// stubProvider satisfies Provider without any adapter attached.
type stubProvider struct {
	codes   map[obd.DTCStatus][]obd.DTC
	cleared bool
	rawResp string
}

func (p *stubProvider) Registry() *obd.Registry           { return obd.Standard() }
func (p *stubProvider) SetStreamKeys(keys []string) error { return nil }
func (p *stubProvider) StartRealtime(cb func(*elm.Snapshot), interval time.Duration) error {
	return nil
}
func (p *stubProvider) StopRealtime() error { return nil }
func (p *stubProvider) StreamError() error  { return nil }

func (p *stubProvider) ReadDTCs(status obd.DTCStatus) ([]obd.DTC, error) {
	if p.cleared && status == obd.StatusStored {
		return nil, nil
	}
	return p.codes[status], nil
}

func (p *stubProvider) ClearDTCs() error { p.cleared = true; return nil }

func (p *stubProvider) MILStatus() (*elm.MILStatusResult, error) {
	return &elm.MILStatusResult{MILOn: true, DTCCount: 1}, nil
}
func (p *stubProvider) BatteryVoltage() (string, error)    { return "14.2V", nil }
func (p *stubProvider) Protocol() (string, error)          { return "ISO 15765-4 (CAN 11/500)", nil }
func (p *stubProvider) SendRaw(cmd string) (string, error) { return p.rawResp, nil }

func newTestServer(t *testing.T) (*Server, *stubProvider) {
	t.Helper()
	prov := &stubProvider{
		codes: map[obd.DTCStatus][]obd.DTC{
			obd.StatusStored: {
				{Category: obd.CategoryPowertrain, Code: "0101", Status: obd.StatusStored},
			},
		},
		rawResp: "41 0C 0B B8",
	}
	cfg := DefaultConfig()
	return New(cfg, prov, nil, nil), prov
}

func TestHandleDTC(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.handleDTC(w, httptest.NewRequest(http.MethodGet, "/api/dtc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var out []struct {
		Code     string `json:"code"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if len(out) != 1 || out[0].Code != "P0101" || out[0].Category != "P" {
		t.Errorf("body = %+v", out)
	}
}

func TestHandleDTCUnknownStore(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.handleDTC(w, httptest.NewRequest(http.MethodGet, "/api/dtc?store=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleDTCClearVerifies(t *testing.T) {
	srv, prov := newTestServer(t)

	w := httptest.NewRecorder()
	srv.handleDTCClear(w, httptest.NewRequest(http.MethodPost, "/api/dtc/clear", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if !prov.cleared {
		t.Error("clear never reached the provider")
	}
	var out struct {
		Remaining int `json:"remaining"`
	}
	json.Unmarshal(w.Body.Bytes(), &out)
	if out.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", out.Remaining)
	}
}

func TestHandleCommand(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"command":"010C"}`)
	w := httptest.NewRecorder()
	srv.handleCommand(w, httptest.NewRequest(http.MethodPost, "/api/command", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var out struct {
		Response string `json:"response"`
	}
	json.Unmarshal(w.Body.Bytes(), &out)
	if out.Response != "41 0C 0B B8" {
		t.Errorf("response = %q", out.Response)
	}
}

func TestHandleCommandEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.handleCommand(w, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleExportCSV(t *testing.T) {
	srv, _ := newTestServer(t)
	rpm := 748.0
	srv.sess.Add(&elm.Snapshot{Time: time.Now(), Values: map[string]*float64{"RPM": &rpm}})

	w := httptest.NewRecorder()
	srv.handleExport(w, httptest.NewRequest(http.MethodGet, "/api/export?format=csv", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	bodyLines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(bodyLines) != 2 {
		t.Errorf("csv lines = %d, want header + 1 row", len(bodyLines))
	}
	if !strings.HasPrefix(bodyLines[0], "timestamp,") {
		t.Errorf("header = %q", bodyLines[0])
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.handleStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out map[string]any
	json.Unmarshal(w.Body.Bytes(), &out)
	if out["milOn"] != true || out["voltage"] != "14.2V" {
		t.Errorf("status body = %v", out)
	}
}

func TestHandleWSConcurrentClients(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()
			// Every client gets the initial frame.
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				t.Errorf("read initial frame: %v", err)
			}
		}()
	}
	wg.Wait()

	// All clients disconnected; nothing left to broadcast to.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		srv.clientsMu.RLock()
		n := len(srv.clients)
		srv.clientsMu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("clients not removed after disconnect")
}

func TestHandleTripReset(t *testing.T) {
	srv, _ := newTestServer(t)
	speed := 50.0
	srv.sess.Add(&elm.Snapshot{Time: time.Now(), Values: map[string]*float64{"SPEED": &speed}})

	w := httptest.NewRecorder()
	srv.handleTripReset(w, httptest.NewRequest(http.MethodPost, "/api/trip/reset", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := srv.sess.Trip(); got.Samples != 0 {
		t.Errorf("trip not reset: %+v", got)
	}
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/obd2dash/internal/elm"
	"github.com/shaunagostinho/obd2dash/internal/obd"
	"github.com/shaunagostinho/obd2dash/internal/session"
)

// Provider is the engine surface the server drives. Satisfied by *elm.Engine.
type Provider interface {
	Registry() *obd.Registry
	SetStreamKeys(keys []string) error
	StartRealtime(cb func(*elm.Snapshot), interval time.Duration) error
	StopRealtime() error
	StreamError() error
	ReadDTCs(status obd.DTCStatus) ([]obd.DTC, error)
	ClearDTCs() error
	MILStatus() (*elm.MILStatusResult, error)
	BatteryVoltage() (string, error)
	Protocol() (string, error)
	SendRaw(cmd string) (string, error)
}

// Server coordinates realtime polling and broadcasts data to WebSocket
// clients, records it to CSV, and persists trip totals.
type Server struct {
	cfg      *Config
	provider Provider
	webFS    fs.FS
	sess     *session.Session
	recorder *session.Recorder
	store    *session.Store

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	odoMu     sync.Mutex
	odoSynced float64 // trip distance already folded into the store
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Snapshot *elm.Snapshot  `json:"snapshot,omitempty"`
	Trip     *session.Trip  `json:"trip,omitempty"`
	Odo      *OdoData       `json:"odo,omitempty"`
	Config   *DisplayConfig `json:"config,omitempty"`
	Stamp    int64          `json:"stamp"` // Unix ms
}

// OdoData is the odometer info sent to clients.
type OdoData struct {
	Total float64 `json:"total"` // km
	Trip  float64 `json:"trip"`  // km
}

// New creates a new Server. The store may be nil when persistence is
// disabled; the provider must already be initialized.
func New(cfg *Config, provider Provider, store *session.Store, webFS fs.FS) *Server {
	keys := provider.Registry().StreamKeys()
	if len(cfg.Poll.PIDs) > 0 {
		keys = cfg.Poll.PIDs
	}
	return &Server{
		cfg:      cfg,
		provider: provider,
		webFS:    webFS,
		sess:     session.New(),
		recorder: session.NewRecorder(cfg.Logging, keys),
		store:    store,
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Session exposes the accumulating session, for telemetry and tests.
func (s *Server) Session() *session.Session { return s.sess }

// Run starts the HTTP server and the realtime polling loop, and blocks
// until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/dtc", s.handleDTC)
	mux.HandleFunc("/api/dtc/clear", s.handleDTCClear)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/trip/reset", s.handleTripReset)

	if len(s.cfg.Poll.PIDs) > 0 {
		if err := s.provider.SetStreamKeys(s.cfg.Poll.PIDs); err != nil {
			return fmt.Errorf("poll PIDs: %w", err)
		}
	}
	interval := time.Duration(s.cfg.Poll.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	if err := s.provider.StartRealtime(s.onSnapshot, interval); err != nil {
		return fmt.Errorf("start realtime: %w", err)
	}

	// Fold accumulated distance into the persistent odometer periodically.
	odoTicker := time.NewTicker(30 * time.Second)
	go func() {
		defer odoTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.syncOdometer()
				return
			case <-odoTicker.C:
				s.syncOdometer()
			}
		}
	}()

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		s.provider.StopRealtime()
		s.recorder.Close()
		s.syncOdometer()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// onSnapshot is the realtime callback: fold into the session, record to
// CSV, broadcast to clients.
func (s *Server) onSnapshot(snap *elm.Snapshot) {
	s.sess.Add(snap)
	s.recorder.Record(snap)

	trip := s.sess.Trip()
	frame := Frame{
		Snapshot: snap,
		Trip:     &trip,
		Odo:      s.odoData(trip),
		Stamp:    time.Now().UnixMilli(),
	}
	s.broadcast(frame)
}

func (s *Server) odoData(trip session.Trip) *OdoData {
	total := trip.DistanceKm
	if s.store != nil {
		if km, err := s.store.Odometer(); err == nil {
			s.odoMu.Lock()
			total = km + (trip.DistanceKm - s.odoSynced)
			s.odoMu.Unlock()
		}
	}
	return &OdoData{
		Total: math.Round(total*10) / 10,
		Trip:  math.Round(trip.DistanceKm*10) / 10,
	}
}

// syncOdometer persists distance accumulated since the last sync.
func (s *Server) syncOdometer() {
	if s.store == nil {
		return
	}
	trip := s.sess.Trip()
	s.odoMu.Lock()
	delta := trip.DistanceKm - s.odoSynced
	s.odoSynced = trip.DistanceKm
	s.odoMu.Unlock()
	if delta <= 0 {
		return
	}
	if _, err := s.store.AddDistance(delta); err != nil {
		log.Printf("[odo] persist failed: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Send initial config + latest data
	trip := s.sess.Trip()
	first := Frame{
		Snapshot: s.sess.Latest(),
		Trip:     &trip,
		Odo:      s.odoData(trip),
		Config:   &s.cfg.Display,
		Stamp:    time.Now().UnixMilli(),
	}
	if data, err := json.Marshal(first); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			remaining := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", remaining)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		s.broadcast(Frame{Config: &s.cfg.Display, Stamp: time.Now().UnixMilli()})

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// handleDTC reads one of the three trouble-code stores; ?store=stored
// (default), pending or permanent.
func (s *Server) handleDTC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	status := obd.StatusStored
	switch r.URL.Query().Get("store") {
	case "", "stored":
	case "pending":
		status = obd.StatusPending
	case "permanent":
		status = obd.StatusPermanent
	default:
		http.Error(w, "unknown store", 400)
		return
	}
	codes, err := s.provider.ReadDTCs(status)
	if err != nil {
		http.Error(w, err.Error(), 502)
		return
	}
	type entry struct {
		Code     string `json:"code"`
		Category string `json:"category"`
	}
	out := make([]entry, len(codes))
	for i, c := range codes {
		out[i] = entry{Code: c.String(), Category: c.Category.Letter()}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleDTCClear clears stored codes, then re-reads to confirm: success is
// the next read coming back empty.
func (s *Server) handleDTCClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	if err := s.provider.ClearDTCs(); err != nil {
		http.Error(w, err.Error(), 502)
		return
	}
	codes, err := s.provider.ReadDTCs(obd.StatusStored)
	if err != nil {
		http.Error(w, err.Error(), 502)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"remaining": len(codes),
	})
}

// handleCommand forwards a raw AT/OBD command from the dashboard console.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		http.Error(w, "bad request", 400)
		return
	}
	resp, err := s.provider.SendRaw(req.Command)
	if err != nil {
		if elm.IsBusy(err) {
			http.Error(w, "channel busy", 503)
			return
		}
		http.Error(w, err.Error(), 502)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"response": resp})
}

// handleExport streams the session history; ?format=csv (default) or json.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	snaps := s.sess.History()
	switch r.URL.Query().Get("format") {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="session.csv"`)
		if err := session.WriteCSV(w, s.provider.Registry().Keys(), snaps); err != nil {
			log.Printf("[export] csv failed: %v", err)
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		if err := session.WriteJSON(w, snaps); err != nil {
			log.Printf("[export] json failed: %v", err)
		}
	default:
		http.Error(w, "unknown format", 400)
	}
}

// handleStatus reports adapter health: MIL state, battery voltage, protocol
// and any terminal streaming error.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	out := map[string]any{}
	if mil, err := s.provider.MILStatus(); err == nil && mil != nil {
		out["milOn"] = mil.MILOn
		out["dtcCount"] = mil.DTCCount
	}
	if v, err := s.provider.BatteryVoltage(); err == nil {
		out["voltage"] = v
	}
	if p, err := s.provider.Protocol(); err == nil {
		out["protocol"] = p
	}
	if err := s.provider.StreamError(); err != nil {
		out["streamError"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleTripReset persists the finished trip and starts a new one.
func (s *Server) handleTripReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	s.syncOdometer()
	done := s.sess.Reset()
	s.odoMu.Lock()
	s.odoSynced = 0
	s.odoMu.Unlock()
	if s.store != nil && done.Samples > 0 {
		if err := s.store.SaveTrip(done); err != nil {
			log.Printf("[trip] save failed: %v", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(done)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

// Package api serves the state of a running ADM-300 session over HTTP and
// pushes decoded reports to websocket clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/monitor"
	"github.com/NotCoffee418/adm300_monitor/pkg/port_reader"
	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Session is the part of *port_reader.Session the server drives.
type Session interface {
	Running() bool
	GotPowerOn() bool
	GotSentence() bool
	LastRawLine() string
	StartMonitoring() error
	StopMonitoring() error
	ClearAccumulatedDose() error
	AcknowledgeAlarm() error
	SetRateAlarmThreshold(threshold float64) error
	SetDoseAlarmThreshold(threshold float64) error
}

type Options struct {
	MetricsEnabled bool
}

type Server struct {
	session  Session
	log      *logrus.Logger
	opts     Options
	mux      *http.ServeMux
	hub      *hub
	upgrader websocket.Upgrader

	latestMutex sync.RWMutex
	latest      *sentence.ParsedReport

	httpServer *http.Server
}

type statusResponse struct {
	Running     bool `json:"running"`
	GotPowerOn  bool `json:"got_power_on"`
	GotSentence bool `json:"got_sentence"`
	WsClients   int  `json:"ws_clients"`
}

type thresholdRequest struct {
	Threshold float64 `json:"threshold"`
}

func NewServer(session Session, opts Options, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		session: session,
		log:     log,
		opts:    opts,
		mux:     http.NewServeMux(),
		hub:     newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /latest", s.handleLatest)
	s.mux.HandleFunc("GET /raw", s.handleRaw)
	s.mux.HandleFunc("POST /commands/{command}", s.handleCommand)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	if opts.MetricsEnabled {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast records report as the latest one when it is valid and pushes it
// to every websocket client. Invalid reports are not forwarded.
func (s *Server) Broadcast(report sentence.ParsedReport) {
	if !report.Valid {
		return
	}
	s.latestMutex.Lock()
	s.latest = &report
	s.latestMutex.Unlock()

	s.hub.broadcast(report.ToJsonBytes())
}

// Latest returns the last valid report, or nil before the first one.
func (s *Server) Latest() *sentence.ParsedReport {
	s.latestMutex.RLock()
	defer s.latestMutex.RUnlock()
	if s.latest == nil {
		return nil
	}
	report := *s.latest
	return &report
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infof("Starting ADM-300 API on %s", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "ADM-300 Monitor API",
		"status":  "running",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Running:     s.session.Running(),
		GotPowerOn:  s.session.GotPowerOn(),
		GotSentence: s.session.GotSentence(),
		WsClients:   s.hub.count(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.session.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "session not running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	report := s.Latest()
	if report == nil {
		writeError(w, http.StatusNotFound, "No readings available yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"line": s.session.LastRawLine()})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("command")

	var err error
	switch name {
	case "start":
		err = s.session.StartMonitoring()
	case "stop":
		err = s.session.StopMonitoring()
	case "clear-dose":
		err = s.session.ClearAccumulatedDose()
	case "ack-alarm":
		err = s.session.AcknowledgeAlarm()
	case "rate-alarm", "dose-alarm":
		var req thresholdRequest
		if r.Body != nil && r.ContentLength != 0 {
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				writeError(w, http.StatusBadRequest, "invalid threshold body")
				return
			}
		}
		if name == "rate-alarm" {
			err = s.session.SetRateAlarmThreshold(req.Threshold)
		} else {
			err = s.session.SetDoseAlarmThreshold(req.Threshold)
		}
	default:
		writeError(w, http.StatusNotFound, "unknown command "+name)
		return
	}

	monitor.ObserveCommand(name, err)

	switch {
	case errors.Is(err, port_reader.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		s.log.Warnf("Command %s rejected: %v", name, err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"command": name, "status": "queued"})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	var initial []byte
	if report := s.Latest(); report != nil {
		initial = report.ToJsonBytes()
	}
	s.hub.add(conn, initial)
	s.log.Debugf("WebSocket client connected from %s", r.RemoteAddr)

	// Clients only listen; reading drives ping/close handling.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.remove(conn)
			s.log.Debugf("WebSocket client %s disconnected", r.RemoteAddr)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

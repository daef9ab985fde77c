package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"serialbridge/pkg/bridge"
	"serialbridge/pkg/config"
)

const (
	defaultStatusHost = "0.0.0.0"
	defaultStatusPort = 18791
)

type statusServer struct {
	svc  *Service
	addr string
	log  *slog.Logger
}

type statusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Session       string            `json:"session"`
	SessionReady  bool              `json:"session_ready"`
	SerialPort    string            `json:"serial_port"`
	SerialOpen    bool              `json:"serial_open"`
	Pending       int               `json:"pending"`
	Stats         bridge.Stats      `json:"stats"`
	LastEvents    map[string]string `json:"last_events,omitempty"`
}

func newStatusServer(svc *Service, cfg config.StatusConfig, log *slog.Logger) *statusServer {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultStatusHost
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultStatusPort
	}

	return &statusServer{
		svc:  svc,
		addr: host + ":" + strconv.Itoa(port),
		log:  log.With("component", "gateway.status"),
	}
}

func (s *statusServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/status", s.handleStatus)
	return r
}

func (s *statusServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}
	return nil
}

func (s *statusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, "ok")
}

func (s *statusServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.svc.isReady() {
		s.respond(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	s.respond(w, http.StatusOK, "ready")
}

func (s *statusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if !s.svc.isReady() {
		status = "not_ready"
	}
	s.respond(w, http.StatusOK, status)
}

func (s *statusServer) respond(w http.ResponseWriter, statusCode int, status string) {
	payload := s.svc.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	var lastEvents map[string]string
	if len(s.lastEventAt) > 0 {
		lastEvents = make(map[string]string, len(s.lastEventAt))
		for eventType, at := range s.lastEventAt {
			lastEvents[string(eventType)] = at.Format(time.RFC3339)
		}
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Session:       s.session.Name(),
		SessionReady:  s.session.Ready(),
		SerialPort:    s.cfg.Serial.Port,
		SerialOpen:    s.serialOpen,
		Pending:       s.bus.Pending(),
		Stats:         s.bridge.Stats(),
		LastEvents:    lastEvents,
	}
}

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/metrics"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Version is reported by the health endpoint
var Version = "dev"

// Overlay is the running overlay service as seen by the API
type Overlay interface {
	IsRunning() bool
	Identity() string
	Position() overlay.Position
	Status() status.Status
	Subscribe() (*status.Subscription, error)
	Trigger(ctx context.Context) error
	Stop() error
}

// Server represents the local control API
type Server struct {
	router    *mux.Router
	overlay   Overlay
	configMgr *config.Manager
	metrics   *metrics.UploadMetrics
	limiter   *rate.Limiter
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer creates a new API server. configMgr and m may be nil.
func NewServer(o Overlay, configMgr *config.Manager, m *metrics.UploadMetrics, cfg config.APIConfig) *Server {
	ratePerSec := cfg.UploadRatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	burst := cfg.UploadBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		router:    mux.NewRouter(),
		overlay:   o,
		configMgr: configMgr,
		metrics:   m,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), burst),
		upgrader: websocket.Upgrader{
			// Local tooling connects from arbitrary origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/stream", s.handleStatusStream)
	api.HandleFunc("/upload", s.handleUpload).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	s.router.Use(s.instrument)
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithComponent("api").Info().Str("addr", "http://"+addr).Msg("Starting control API")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// instrument counts requests per route template and status code
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.APIRequest(route, strconv.Itoa(rec.code))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Running  bool             `json:"running"`
	Identity string           `json:"identity"`
	Position overlay.Position `json:"position"`
	Status   status.Status    `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) statusResponse() StatusResponse {
	return StatusResponse{
		Running:  s.overlay.IsRunning(),
		Identity: s.overlay.Identity(),
		Position: s.overlay.Position(),
		Status:   s.overlay.Status(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusResponse())
}

// handleUpload triggers a cycle the same way a tap on the control does
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.overlay.IsRunning() {
		s.metrics.TriggerRejected("api", "not_running")
		writeError(w, http.StatusConflict, "overlay is not running")
		return
	}
	if !s.limiter.Allow() {
		s.metrics.TriggerRejected("api", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
		return
	}

	if err := s.overlay.Trigger(r.Context()); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Upload trigger failed")
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, s.statusResponse())
}

// handleStop is the notification's Stop action
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.overlay.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		writeError(w, http.StatusNotFound, "no configuration")
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

// handleStatusStream pushes every status transition over a websocket
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	sub, err := s.overlay.Subscribe()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Reads only detect the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case st, ok := <-sub.C():
			if !ok {
				// The service stopped
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "overlay stopped")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-gone:
			return
		}
	}
}

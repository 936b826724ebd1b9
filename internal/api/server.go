package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/service"
)

const (
	activationPath = "/api/activation"
	webhookPath    = "/telegram/webhook"

	maxBodySize = 1 << 20
)

// Response payloads read by the dashboard
const (
	statusSuccess = "success"
	statusError   = "error"

	dataBadInput          = "Bad input"
	dataInvalidInviteCode = "Invalid invite code"
	dataAlreadyActivated  = "Already activated"
	dataRateLimited       = "Too many attempts, try again later"
	dataInternal          = "Unexpected error occurred"
)

//go:embed templates/*.html
var templates embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templates, "templates/dashboard.html"))

// Activator registers receiving groups
type Activator interface {
	Activate(ctx context.Context, req service.ActivationRequest) error
}

// Options configures the optional parts of the server
type Options struct {
	// Webhook serves Telegram deliveries when set
	Webhook http.Handler
	// Ready reports readiness for /healthz; nil means always ready
	Ready func() bool

	RateLimit float64
	RateBurst int
	// TrustedProxies may set X-Forwarded-For for rate limiting. Without
	// them every client is keyed on its connection address.
	TrustedProxies []netip.Prefix
}

// Server provides the HTTP API and serves the dashboard.
type Server struct {
	activator Activator
	logger    *logrus.Logger
	mux       *http.ServeMux
	limiter   *ipLimiter
	trusted   []netip.Prefix
	ready     func() bool
	now       func() time.Time
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(activator Activator, logger *logrus.Logger, opts Options) *Server {
	s := &Server{
		activator: activator,
		logger:    logger,
		mux:       http.NewServeMux(),
		limiter:   newIPLimiter(opts.RateLimit, opts.RateBurst),
		trusted:   opts.TrustedProxies,
		ready:     opts.Ready,
		now:       time.Now,
	}
	s.routes(opts.Webhook)
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes(webhook http.Handler) {
	s.mux.HandleFunc("POST "+activationPath, s.withCORS(s.handleActivation))
	s.mux.HandleFunc("OPTIONS "+activationPath, s.withCORS(s.handlePreflight))

	s.mux.HandleFunc("GET /dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	if webhook != nil {
		s.mux.Handle("POST "+webhookPath, webhook)
	}
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

type response struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, response{Status: statusError, Data: message})
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		next(w, r)
	}
}

// ---------------------------------------------------------------------------
// Activation
// ---------------------------------------------------------------------------

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivation(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(clientKey(r, s.trusted), s.now()) {
		s.respondError(w, http.StatusTooManyRequests, dataRateLimited)
		return
	}

	var req service.ActivationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, dataBadInput)
		return
	}

	err := s.activator.Activate(r.Context(), req)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, response{Status: statusSuccess, Data: service.MsgActivationSuccess})
	case errors.Is(err, service.ErrBadInput):
		s.respondError(w, http.StatusBadRequest, dataBadInput)
	case errors.Is(err, service.ErrAlreadyActivated):
		s.respondError(w, http.StatusBadRequest, dataAlreadyActivated)
	case errors.Is(err, service.ErrInvalidInviteCode):
		s.respondError(w, http.StatusForbidden, dataInvalidInviteCode)
	default:
		s.logger.WithError(err).WithField("group_id", req.GroupID).Error("failed to activate group")
		s.respondError(w, http.StatusInternalServerError, dataInternal)
	}
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

type dashboardData struct {
	GroupID        string
	GroupName      string
	ActivationPath string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := dashboardData{
		GroupID:        q.Get("group_id"),
		GroupName:      q.Get("group_name"),
		ActivationPath: activationPath,
	}
	if data.GroupName == "" {
		data.GroupName = data.GroupID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		s.logger.WithError(err).Error("failed to execute dashboard template")
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

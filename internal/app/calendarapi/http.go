package calendarapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/planboard/project/internal/app/identity"
	"github.com/planboard/project/internal/calendar"
	"github.com/planboard/project/internal/editor"
	"github.com/planboard/project/internal/logging"
	platformauth "github.com/planboard/project/internal/platform/auth"
	"github.com/planboard/project/internal/platform/metrics"
	"github.com/planboard/project/internal/realtime"
)

const maxBodyBytes = 1 << 20

var (
	requestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "planboard_http_requests_total",
		Help: "HTTP requests by method, route pattern and status.",
	}, []string{"method", "route", "status"})
	streamsOpen = metrics.NewGauge(metrics.Opts{
		Name: "planboard_event_streams_open",
		Help: "Server-sent event streams currently open.",
	})
)

func init() {
	metrics.Default.MustRegister(requestsTotal, streamsOpen)
}

type Handler struct {
	Calendar      *calendar.Service
	Identity      *identity.Service
	Changes       *realtime.Channel
	Commands      []editor.Command
	AllowedOrigin string
	CalendarName  string
	Heartbeat     time.Duration
	Logger        *slog.Logger
}

func NewHandler(calendarSvc *calendar.Service, identitySvc *identity.Service, changes *realtime.Channel, allowedOrigin string) *Handler {
	return &Handler{
		Calendar:      calendarSvc,
		Identity:      identitySvc,
		Changes:       changes,
		Commands:      editor.DefaultCommands(),
		AllowedOrigin: allowedOrigin,
		CalendarName:  "Planboard",
		Heartbeat:     25 * time.Second,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)
	r.Use(h.corsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/api/v1/auth/register", h.handleRegister)
	r.Post("/api/v1/auth/login", h.handleLogin)
	r.Post("/api/v1/auth/refresh", h.handleRefresh)
	r.Post("/api/v1/auth/logout", h.handleLogout)
	r.Get("/api/v1/editor/commands", h.handleEditorCommands)

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware(false))
		authR.Post("/api/v1/auth/logout-all", h.handleLogoutAll)

		authR.Get("/api/v1/events", h.handleListEvents)
		authR.Post("/api/v1/events", h.handleCreateEvent)
		authR.Get("/api/v1/events/today", h.handleUnitEvents(calendar.UnitDay))
		authR.Get("/api/v1/events/week", h.handleUnitEvents(calendar.UnitWeek))
		authR.Get("/api/v1/events/month", h.handleUnitEvents(calendar.UnitMonth))
		authR.Get("/api/v1/events/{eventID}", h.handleGetEvent)
		authR.Patch("/api/v1/events/{eventID}", h.handleUpdateEvent)
		authR.Delete("/api/v1/events/{eventID}", h.handleDeleteEvent)
		authR.Get("/api/v1/events/{eventID}/occurrences", h.handleOccurrences)

		authR.Get("/api/v1/categories", h.handleListCategories)
		authR.Get("/api/v1/calendar.ics", h.handleExportCalendar)
		authR.Post("/api/v1/calendar.ics", h.handleImportCalendar)
	})

	// EventSource cannot set headers, so the stream also takes ?token=.
	r.Group(func(streamR chi.Router) {
		streamR.Use(h.authMiddleware(true))
		streamR.Get("/api/v1/events/stream", h.handleStream)
	})

	return r
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.Identity.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidUsername), errors.Is(err, identity.ErrInvalidPassword):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrUsernameTaken):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.internalError(w, r, err)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.Identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.Identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRefreshTokenMissing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrInvalidRefreshToken):
			h.writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.internalError(w, r, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Identity.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, identity.ErrRefreshTokenMissing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := platformauth.PrincipalFromContext(r.Context())
	if err := h.Identity.LogoutAll(r.Context(), p.ID); err != nil {
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEditorCommands(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"commands": h.Commands})
}

// countRequests labels by route pattern so ids in paths do not explode the
// label set.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOriginForRequest(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOriginForRequest(requestOrigin string) string {
	allowed := strings.TrimSpace(h.AllowedOrigin)
	if allowed == "" {
		return "*"
	}
	if allowed == "*" {
		return allowed
	}

	origin := strings.TrimSpace(requestOrigin)
	if origin == "" {
		return allowed
	}
	if origin == allowed {
		return origin
	}
	if isEquivalentLoopbackOrigin(origin, allowed) {
		return origin
	}
	return allowed
}

func isEquivalentLoopbackOrigin(originA, originB string) bool {
	a, err := url.Parse(originA)
	if err != nil {
		return false
	}
	b, err := url.Parse(originB)
	if err != nil {
		return false
	}
	if !isLoopbackHost(a.Hostname()) || !isLoopbackHost(b.Hostname()) {
		return false
	}
	if a.Port() != b.Port() {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme)
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// authMiddleware verifies the access token and puts the principal, and a
// request-scoped logger, on the context.
func (h *Handler) authMiddleware(allowQueryToken bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := platformauth.BearerToken(r.Header.Get("Authorization"))
			if token == "" && allowQueryToken {
				token = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if token == "" {
				h.writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := h.Identity.AuthToken.Parse(token)
			if err != nil {
				h.writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			principal := platformauth.PrincipalFromClaims(claims)
			ctx := platformauth.ContextWithPrincipal(r.Context(), principal)
			ctx = logging.ContextWithLogger(ctx, h.logger().With(
				"request_id", middleware.GetReqID(ctx),
				"user_id", principal.ID,
			))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

// writeCalendarError maps calendar failures onto HTTP statuses. Storage
// detail stays in the server log.
func (h *Handler) writeCalendarError(w http.ResponseWriter, err error) {
	switch {
	case calendar.IsAuthentication(err):
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, calendar.ErrInvalidEvent), errors.Is(err, calendar.ErrUnknownUnit):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case calendar.IsStorage(err):
		h.writeError(w, http.StatusInternalServerError, "storage request failed")
	default:
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Operation(r.Context(), h.Logger, "calendarapi", "").Error("request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

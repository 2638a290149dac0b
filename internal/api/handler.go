package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kartoza/soc-estimator/internal/config"
	"github.com/kartoza/soc-estimator/internal/form"
	"github.com/kartoza/soc-estimator/internal/httputil"
	"github.com/kartoza/soc-estimator/internal/models"
	"github.com/kartoza/soc-estimator/internal/profile"
	"github.com/kartoza/soc-estimator/internal/session"
)

// SessionCookie carries the browser's session ID
const SessionCookie = "soc_session"

// ProfileRevisionHeader lets the page notice a profile reload
const ProfileRevisionHeader = "X-Profile-Revision"

// EndpointSource reports where predictions are currently sent
type EndpointSource interface {
	Endpoint() string
}

// Handler provides HTTP API endpoints
type Handler struct {
	sessions *session.Store
	profiles *profile.Store
	endpoint EndpointSource
	cfg      config.Config
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	sessions *session.Store,
	profiles *profile.Store,
	endpoint EndpointSource,
	cfg config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions: sessions,
		profiles: profiles,
		endpoint: endpoint,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")
	r.HandleFunc("/profile", h.handleProfile).Methods("GET")

	// Form state for the caller's session
	r.HandleFunc("/form", h.handleGetForm).Methods("GET")
	r.HandleFunc("/form/fields/{index:[0-9]+}", h.handleUpdateField).Methods("PUT")
	r.HandleFunc("/form/submit", h.handleSubmit).Methods("POST")
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns server information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	host := ""
	if u, err := url.Parse(h.endpoint.Endpoint()); err == nil {
		host = u.Host
	}
	info := map[string]interface{}{
		"version":       h.cfg.Version,
		"endpoint_host": host,
		"sessions":      h.sessions.Len(),
		"policies":      h.cfg.Policies,
	}
	httputil.RespondJSON(w, http.StatusOK, info)
}

// handleProfile returns the active presentation profile
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	h.setRevision(w)
	httputil.RespondJSON(w, http.StatusOK, h.profiles.Current())
}

// handleGetForm returns the session's form state, creating the session if needed
func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	f := h.sessionForm(w, r)
	h.respondState(w, http.StatusOK, f)
}

// handleUpdateField replaces the text of one field
func (h *Handler) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid field index")
		return
	}

	var req models.FieldUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Value == nil {
		httputil.RespondError(w, http.StatusBadRequest, "value is required")
		return
	}

	f := h.sessionForm(w, r)
	if err := f.Update(index, *req.Value); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondState(w, http.StatusOK, f)
}

// handleSubmit sends the session's values to the prediction endpoint. The
// body may carry all five field texts, which are applied first.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f := h.sessionForm(w, r)
	if req.Values != nil {
		for i, v := range req.Values {
			// i is always within the fixed vector
			_ = f.Update(i, v)
		}
	}

	// A closed page must not abort a request already on the wire.
	ctx := context.WithoutCancel(r.Context())
	err := f.Submit(ctx)

	status := http.StatusOK
	switch {
	case err == nil, errors.Is(err, form.ErrSuperseded):
	case errors.Is(err, form.ErrSubmitInFlight):
		status = http.StatusConflict
	case errors.Is(err, form.ErrInvalidInput):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, form.ErrRequestFailed):
		status = http.StatusBadGateway
		h.logger.Warn("Prediction request failed",
			zap.String("endpoint", h.endpoint.Endpoint()), zap.Error(err))
	default:
		status = http.StatusInternalServerError
		h.logger.Error("Unexpected submit error", zap.Error(err))
	}

	h.respondState(w, status, f)
}

// sessionForm resolves the caller's form and refreshes the session cookie
func (h *Handler) sessionForm(w http.ResponseWriter, r *http.Request) *form.PredictorForm {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}

	id, f, created := h.sessions.GetOrCreate(id)
	if created {
		h.logger.Debug("Session created", zap.String("session", id))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.cfg.GetSessionTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return f
}

// respondState writes the form state along with the profile revision
func (h *Handler) respondState(w http.ResponseWriter, status int, f *form.PredictorForm) {
	h.setRevision(w)
	httputil.RespondJSON(w, status, h.view(f))
}

func (h *Handler) setRevision(w http.ResponseWriter) {
	w.Header().Set(ProfileRevisionHeader, strconv.FormatUint(h.profiles.Revision(), 10))
}

// view renders the form state with the active profile's result format
func (h *Handler) view(f *form.PredictorForm) form.State {
	st := f.Snapshot()
	if st.Result != nil {
		st.Display = h.profiles.Current().FormatResult(*st.Result)
	}
	return st
}

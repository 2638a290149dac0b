package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kartoza/soc-estimator/internal/config"
	"github.com/kartoza/soc-estimator/internal/httputil"
	"github.com/kartoza/soc-estimator/internal/models"
)

// settingsView is the resolved configuration as seen by the page
type settingsView struct {
	Endpoint    string              `json:"endpoint"`
	Timeout     string              `json:"timeout"`
	ProfilePath string              `json:"profilePath"`
	ProfileName string              `json:"profileName"`
	MaxSessions int                 `json:"maxSessions"`
	SessionTTL  string              `json:"sessionTtl"`
	Policies    config.PolicyConfig `json:"policies"`
	Version     string              `json:"version"`
	Saved       bool                `json:"saved"`
}

func (s *Server) settings() settingsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return settingsView{
		Endpoint:    s.client.Endpoint(),
		Timeout:     s.cfg.GetTimeout().String(),
		ProfilePath: s.cfg.ProfilePath,
		ProfileName: s.profiles.Current().Name,
		MaxSessions: s.cfg.MaxSessions,
		SessionTTL:  s.cfg.GetSessionTTL().String(),
		Policies:    s.cfg.Policies,
		Version:     s.cfg.Version,
	}
}

// handleSettings reports the settings the server is running with
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, s.settings())
}

// handleUpdateSettings switches the prediction endpoint for every session.
// The change is written back to the settings file when there is one.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.SettingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Endpoint == nil {
		httputil.RespondError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	s.mu.Lock()
	next := s.cfg
	next.Endpoint = *req.Endpoint
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved := false
	if next.Path != "" {
		// Save the file as written, so environment overrides stay out of it
		onDisk, err := config.LoadFile(next.Path)
		if err == nil {
			onDisk.Endpoint = next.Endpoint
			err = onDisk.Save(next.Path)
		}
		if err != nil {
			s.mu.Unlock()
			s.logger.Error("Failed to save settings", zap.String("path", next.Path), zap.Error(err))
			httputil.RespondError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		saved = true
	}

	s.cfg = next
	s.client.SetEndpoint(next.Endpoint)
	s.mu.Unlock()

	s.logger.Info("Prediction endpoint changed", zap.String("endpoint", next.Endpoint))

	view := s.settings()
	view.Saved = saved
	httputil.RespondJSON(w, http.StatusOK, view)
}

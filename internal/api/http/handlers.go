package apihttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/TypeA2/ai-sync/internal/domain"
)

type loadSessionRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleLoadSession(w, r)
	case http.MethodDelete:
		s.handleStopSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST or DELETE")
	}
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	var req loadSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}

	locator, err := resolveMediaPath(s.mediaDir, req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.coord.SetFile(r.Context(), locator); err != nil {
		if errors.Is(err, domain.ErrSessionActive) {
			writeError(w, http.StatusConflict, "session_active", "a media session is already active")
			return
		}
		s.logger.Warn("session load failed",
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "media_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, s.coord.Status())
}

func (s *Server) handleStopSession(w http.ResponseWriter, _ *http.Request) {
	if err := s.coord.StopPlayback(); err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			writeError(w, http.StatusNotFound, "no_session", "no media session is active")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Status())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolveMediaPath joins the request path under the media dir and rejects
// traversal outside it. With no media dir configured any absolute path is
// accepted as-is.
func resolveMediaPath(mediaDir, reqPath string) (string, error) {
	reqPath = strings.TrimSpace(reqPath)
	base := strings.TrimSpace(mediaDir)
	if base == "" {
		return reqPath, nil
	}

	base = filepath.Clean(base)
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}

	joined := filepath.Join(base, filepath.FromSlash(reqPath))
	joined = filepath.Clean(joined)
	if joined != base && !strings.HasPrefix(joined, base+string(filepath.Separator)) {
		return "", errors.New("path escapes media directory")
	}
	return joined, nil
}

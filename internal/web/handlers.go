package web

import (
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/label-scanner/internal/capture"
	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/loop"
	"github.com/zombor/label-scanner/internal/session"
)

// maxFrameSize bounds uploaded frames; phone photos of labels can be large
const maxFrameSize = int64(20 << 20)

// sessionView is the JSON shape of the current scan
type sessionView struct {
	ID          string                  `json:"id,omitempty"`
	Phase       string                  `json:"phase"`
	Status      string                  `json:"status,omitempty"`
	Matches     ingredients.MatchResult `json:"matches"`
	RemainingMS int64                   `json:"remaining_ms"`
}

func (s *Server) viewOf(snap session.Session) sessionView {
	view := sessionView{
		ID:          snap.ID,
		Phase:       snap.Phase.String(),
		Matches:     snap.Matches,
		RemainingMS: snap.Remaining(s.timeSource.Now()).Milliseconds(),
	}
	if snap.Phase == session.Resolved || snap.Phase == session.Alerting {
		view.Status = snap.Status.String()
	}
	// Ensure we always return an array, not nil
	if view.Matches == nil {
		view.Matches = ingredients.MatchResult{}
	}
	return view
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleUploadFrame accepts a webcam frame as a multipart "frame" field or a raw image body
func (s *Server) handleUploadFrame(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		jsonError(w, "Frame uploads are disabled for this capture source", http.StatusConflict)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameSize)

	var (
		data        []byte
		contentType = r.Header.Get("Content-Type")
		err         error
	)
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFrameSize); err != nil {
			slog.Error("Error parsing multipart form", "error", err)
			jsonError(w, "Error parsing form", http.StatusBadRequest)
			return
		}
		f, header, err := r.FormFile("frame")
		if err != nil {
			jsonError(w, "No frame provided", http.StatusBadRequest)
			return
		}
		defer f.Close()

		data, err = io.ReadAll(f)
		if err != nil {
			slog.Error("Error reading frame data", "error", err, "filename", header.Filename)
			jsonError(w, "Error reading frame", http.StatusInternalServerError)
			return
		}
		contentType = header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = capture.ContentTypeForExt(filepath.Ext(header.Filename))
		}
	} else {
		data, err = io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				jsonError(w, "Frame is too large", http.StatusRequestEntityTooLarge)
				return
			}
			jsonError(w, "Error reading frame", http.StatusBadRequest)
			return
		}
	}

	if len(data) == 0 {
		jsonError(w, "No frame provided", http.StatusBadRequest)
		return
	}

	frame, err := capture.Decode(data, contentType)
	if err != nil {
		slog.Debug("Rejected frame upload", "content_type", contentType, "error", err)
		jsonError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	s.frames.Update(frame)
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleScan starts a scan unless one is already running
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	accepted, err := s.scanner.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, loop.ErrStopped) {
			jsonError(w, "Scanner is shutting down", http.StatusServiceUnavailable)
			return
		}
		slog.Error("Error triggering scan", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	snap := s.scanner.Session()
	if !accepted {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "Scan already in progress",
			"session": s.viewOf(snap),
		})
		return
	}

	slog.Info("Scan requested", "session_id", snap.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"session":  s.viewOf(snap),
	})
}

// handleSession returns the current scan session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.viewOf(s.scanner.Session()))
}

// handleFrame returns the latest rendered frame as PNG
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := s.scanner.Frame()
	if frame == nil {
		corsError(w, "No frame rendered yet", http.StatusServiceUnavailable)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, frame); err != nil {
		slog.Error("Error encoding frame", "error", err)
	}
}

// handleUtterances returns spoken summaries after the given sequence number
func (s *Server) handleUtterances(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			corsError(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	writeJSON(w, http.StatusOK, s.utterances.Since(since))
}

// handleIngredients lists the flagged ingredient dictionary
func (s *Server) handleIngredients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dict.Rules())
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

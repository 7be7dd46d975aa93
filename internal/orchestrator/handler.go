package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"nlcd-county/internal/animation"

	"github.com/go-chi/chi/v5"
)

// Handler exposes orchestrator HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger. Render
// metrics are recorded by the Service.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// animationRequest is the body of POST /animations.
type animationRequest struct {
	Request
	Format string `json:"format"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Year  int    `json:"year,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write json response failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, kind string) {
	h.writeJSON(w, HTTPStatus(kind), errorResponse{Error: err.Error(), Kind: kind, Year: FailedYear(err)})
}

// ListStates handles GET /states.
func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Store().States())
}

// ListCounties handles GET /states/{state}/counties.
func (h *Handler) ListCounties(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	counties := h.svc.Store().Counties(state)
	if len(counties) == 0 {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown state " + strconv.Quote(state), Kind: KindNotFound})
		return
	}
	h.writeJSON(w, http.StatusOK, counties)
}

// CreateAnimation handles POST /animations.
// Body: { "start": 1985, "stop": 2024, "step": 8, "state": "Oregon", "county": "Benton", "format": "gif" }.
// The encoded animation is published to the output path; the response carries
// the bytes of this render.
func (h *Handler) CreateAnimation(w http.ResponseWriter, r *http.Request) {
	var body animationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid animation body", slog.String("error", err.Error()))
		h.writeError(w, err, KindBadRequest)
		return
	}
	if err := body.Request.validateDataset(); err != nil {
		h.writeError(w, err, KindInvalidRange)
		return
	}

	res, err := h.svc.Render(r.Context(), body.Request, body.Format, nil)
	if err != nil {
		kind := Kind(err)
		if kind == KindInternal {
			h.log.Error("render failed", slog.String("error", err.Error()))
		}
		h.writeError(w, err, kind)
		return
	}

	w.Header().Set("X-Elapsed-Seconds", strconv.FormatFloat(res.Elapsed.Seconds(), 'f', 0, 64))
	w.Header().Set("X-Frame-Count", strconv.Itoa(len(res.Years)))
	w.Header().Set("Content-Type", animation.ContentType(res.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Artifact)))
	w.WriteHeader(http.StatusCreated)
	if _, err := w.Write(res.Artifact); err != nil {
		h.log.Warn("write artifact failed", slog.String("error", err.Error()))
	}
}

// LatestAnimation handles GET /animations/latest[?format=avi].
func (h *Handler) LatestAnimation(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if !animation.ValidFormat(format) {
		h.writeError(w, errors.New("unsupported format "+strconv.Quote(format)), KindBadRequest)
		return
	}
	h.serveArtifact(w, h.svc.ArtifactPath(format), format)
}

func (h *Handler) serveArtifact(w http.ResponseWriter, path, format string) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no animation has been rendered", Kind: KindNotFound})
		return
	}
	if err != nil {
		h.log.Error("open artifact failed", slog.String("path", path), slog.String("error", err.Error()))
		h.writeError(w, err, KindInternal)
		return
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	}
	w.Header().Set("Content-Type", animation.ContentType(format))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.log.Warn("write artifact failed", slog.String("error", err.Error()))
	}
}

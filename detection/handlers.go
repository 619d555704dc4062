package detection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// maxRequestBodySize bounds POST /api/check bodies. It leaves room for a URL
// at the normalizer's length limit plus JSON escaping.
const maxRequestBodySize = 16 << 10

// CheckRequest is the body of POST /api/check.
type CheckRequest struct {
	URL string `json:"url"`
}

// CheckResponse is the body returned for a classified URL.
type CheckResponse struct {
	URL         string  `json:"url"`
	IsSafe      bool    `json:"is_safe"`
	Prediction  string  `json:"prediction"`
	Confidence  float64 `json:"confidence"`
	ThreatLevel string  `json:"threat_level"`
	Reason      string  `json:"reason,omitempty"`
}

// NewCheckResponse converts a verdict into its wire form.
func NewCheckResponse(v Verdict) CheckResponse {
	return CheckResponse{
		URL:         v.URL,
		IsSafe:      v.IsSafe(),
		Prediction:  v.Label.String(),
		Confidence:  v.Confidence,
		ThreatLevel: string(v.ThreatLevel),
		Reason:      v.OverrideReason,
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status           string `json:"status"`
	ClassifierLoaded bool   `json:"classifier_loaded"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// URLClassifier is what the handlers need from the pipeline.
type URLClassifier interface {
	Classify(ctx context.Context, raw string) (Verdict, error)
	ClassifierLoaded() bool
}

// Handlers serves the HTTP API.
type Handlers struct {
	classifier URLClassifier
	staticDir  string
	logger     *slog.Logger
}

// NewHandlers creates the HTTP handlers. staticDir holds the built frontend.
func NewHandlers(classifier URLClassifier, staticDir string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{classifier: classifier, staticDir: staticDir, logger: logger}
}

// Routes returns a mux with every endpoint registered.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/check", h.CheckHandler)
	mux.HandleFunc("/healthz", h.HealthHandler)
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(filepath.Join(h.staticDir, "assets")))))
	mux.HandleFunc("/", h.IndexHandler)
	return h.recoverer(mux)
}

// CheckHandler classifies the URL in the request body.
func (h *Handlers) CheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
		return
	}

	var req CheckRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "URL is required"})
		return
	}

	verdict, err := h.classifier.Classify(r.Context(), req.URL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, NewCheckResponse(verdict))
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
	case errors.Is(err, ErrClassifierUnavailable):
		h.logger.Warn("classification refused, model not loaded",
			slog.String("component", "api"),
			slog.String("url", req.URL))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Model not loaded"})
	default:
		h.logger.Error("classification failed",
			slog.String("component", "api"),
			slog.String("url", req.URL),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Internal server error"})
	}
}

// HealthHandler reports whether model-backed verdicts are available. It
// always answers 200 because rule overrides keep working without the model.
func (h *Handlers) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", ClassifierLoaded: h.classifier.ClassifierLoaded()}
	if !resp.ClassifierLoaded {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// IndexHandler serves the built frontend, or a notice when it is missing.
func (h *Handlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	index := filepath.Join(h.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Frontend not built"})
		return
	}
	http.ServeFile(w, r, index)
}

// recoverer turns a panic anywhere below it into a logged, generic 500.
func (h *Handlers) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic while serving request",
					slog.String("component", "api"),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package handlers exposes the inference service over HTTP: an image upload
// prediction endpoint, a health check, an embedded browser page, and
// rendered API docs.
package handlers

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/uptrace/bunrouter"

	"github.com/mycolab/shroom-api/internal/config"
	"github.com/mycolab/shroom-api/internal/rank"
	"github.com/mycolab/shroom-api/internal/service"
)

//go:embed static
var staticFS embed.FS

// PredictionResponse is the wire shape of a successful prediction.
type PredictionResponse struct {
	TopN []rank.Prediction `json:"top_n"`
}

// ErrorResponse is the wire shape of every failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse mirrors the health endpoint payload.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

type Handler struct {
	svc *service.Service
	cfg *config.Config
}

func NewHandler(svc *service.Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

// Router builds the bunrouter-backed HTTP handler with logging and rate
// limiting applied to every route.
func (h *Handler) Router() *bunrouter.CompatRouter {
	initLimiter(h.cfg.Rate)
	router := bunrouter.New(
		bunrouter.Use(loggingMiddleware),
		bunrouter.Use(limitMiddleware),
	).Compat()

	router.GET("/", enableCORS(h.Index))
	router.GET("/docs", enableCORS(h.Docs))
	router.GET("/health", enableCORS(h.Health))
	router.POST("/predict", enableCORS(h.Predict))
	return router
}

// Health reports service readiness. It never fails, even before startup.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	modelState := "not loaded"
	if h.svc.HealthStatus() {
		modelState = "loaded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Model: modelState})
}

// Predict handles a multipart image upload with an optional "n" form value
// for the number of predictions to return.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	// 10MB max upload
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image file")
		return
	}

	n := h.cfg.DefaultTopN
	if v := r.FormValue("n"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
	}

	preds, err := h.svc.Predict(r.Context(), payload, header.Header.Get("Content-Type"), n)
	if err != nil {
		var invalid *service.InvalidRequestError
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Reason)
		case errors.Is(err, service.ErrNotLoaded):
			writeError(w, http.StatusServiceUnavailable, "model not loaded")
		default:
			log.Printf("prediction error: %v", err)
			writeError(w, http.StatusInternalServerError, "Prediction failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, PredictionResponse{TopN: preds})
}

// Index serves the embedded upload page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// Docs renders the embedded API documentation markdown as HTML.
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	md, err := staticFS.ReadFile("static/docs.md")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "docs unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(mdToHTML(md))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

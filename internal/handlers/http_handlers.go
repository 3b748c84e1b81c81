package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"github.com/leadguard/scan-engine/internal/database"
	"github.com/leadguard/scan-engine/internal/gemini"
	"github.com/leadguard/scan-engine/internal/pipeline"
	"github.com/leadguard/scan-engine/internal/realtime"
	"github.com/leadguard/scan-engine/internal/verdict"
)

const defaultRecentLimit = 20

// HTTPHandler handles HTTP requests for the scan engine
type HTTPHandler struct {
	logger       *slog.Logger
	orchestrator *pipeline.Orchestrator
	threatRepo   *database.ThreatRepository
	hub          *realtime.Hub
	db           *sqlx.DB
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	logger *slog.Logger,
	orchestrator *pipeline.Orchestrator,
	threatRepo *database.ThreatRepository,
	hub *realtime.Hub,
	db *sqlx.DB,
) *HTTPHandler {
	return &HTTPHandler{
		logger:       logger,
		orchestrator: orchestrator,
		threatRepo:   threatRepo,
		hub:          hub,
		db:           db,
	}
}

// RegisterRoutes registers HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.handleHealth).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/scan", h.handleScan).Methods("POST")
	api.HandleFunc("/threats", h.handleRecentThreats).Methods("GET")
	api.HandleFunc("/threats/search", h.handleSearchBrand).Methods("GET")
	api.HandleFunc("/users/{id}/history", h.handleUserHistory).Methods("GET")
	api.HandleFunc("/stats", h.handleStats).Methods("GET")

	if h.hub != nil {
		router.HandleFunc("/ws/threats", h.hub.HandleWebSocket)
	}
}

type scanRequest struct {
	Content          string            `json:"content"`
	BrandName        string            `json:"brand_name"`
	UserID           string            `json:"user_id"`
	DocumentMetadata map[string]string `json:"document_metadata"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPHandler) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "input_error", "request body must be valid JSON")
		return
	}

	result, err := h.orchestrator.Scan(r.Context(), pipeline.ScanRequest{
		Content:          req.Content,
		BrandName:        req.BrandName,
		UserID:           req.UserID,
		DocumentMetadata: req.DocumentMetadata,
	})
	if err != nil {
		h.respondScanError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// respondScanError maps the pipeline error taxonomy onto distinct HTTP
// failures so callers can tell bad input, no answer, and bad answer apart.
func (h *HTTPHandler) respondScanError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrEmptyContent) {
		h.respondError(w, http.StatusBadRequest, "input_error", "content is required")
		return
	}

	var exhausted *gemini.ExhaustedError
	if errors.As(err, &exhausted) {
		h.logger.Error("analysis node unavailable", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "upstream_exhausted",
			"the analysis node is unavailable; wait before scanning again")
		return
	}

	var malformed *verdict.ParseError
	if errors.As(err, &malformed) {
		h.logger.Error("analysis output unusable", "error", err)
		h.respondError(w, http.StatusBadGateway, "malformed_analysis",
			"the analysis node returned an unusable answer")
		return
	}

	h.logger.Error("scan failed", "error", err)
	h.respondError(w, http.StatusInternalServerError, "internal_error", "scan failed")
}

func (h *HTTPHandler) handleRecentThreats(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			h.respondError(w, http.StatusBadRequest, "input_error", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	records, err := h.threatRepo.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list recent threats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error", "failed to list threats")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"threats": records})
}

func (h *HTTPHandler) handleSearchBrand(w http.ResponseWriter, r *http.Request) {
	brand := r.URL.Query().Get("brand")
	if brand == "" {
		h.respondError(w, http.StatusBadRequest, "input_error", "brand query parameter is required")
		return
	}

	record, err := h.threatRepo.SearchBrand(r.Context(), brand)
	if err != nil {
		h.logger.Error("brand search failed", "brand", brand, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}
	if record == nil {
		h.respondError(w, http.StatusNotFound, "not_found", "no threats recorded for this brand")
		return
	}
	h.respondJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	records, err := h.threatRepo.HistoryByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list user history", "user_id", userID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error", "failed to list history")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"history": records})
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.threatRepo.CountAll(r.Context())
	if err != nil {
		h.logger.Error("failed to count threats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error", "failed to compute stats")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, code, map[string]string{"status": status, "service": "scan-engine"})
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, errorResponse{Code: code, Message: message})
}

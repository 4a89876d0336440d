package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

// MatrixHandler serves the persisted metrics matrix and live feature queries
// ⭐ SSOT: matrix 조회 API 핸들러는 이 구조체에서만
type MatrixHandler struct {
	metrics  *artifact.Store
	features contracts.FeatureSource
	catalog  *catalog.Catalog
	logger   *logger.Logger
}

// NewMatrixHandler creates a new matrix handler
func NewMatrixHandler(metrics *artifact.Store, features contracts.FeatureSource, cat *catalog.Catalog, log *logger.Logger) *MatrixHandler {
	return &MatrixHandler{
		metrics:  metrics,
		features: features,
		catalog:  cat,
		logger:   log,
	}
}

func (h *MatrixHandler) latest(w http.ResponseWriter) (*contracts.MetricsMatrix, bool) {
	var m contracts.MetricsMatrix
	if err := h.metrics.ReadLatest(&m); err != nil {
		if errors.Is(err, artifact.ErrNoLatest) {
			respondError(w, http.StatusNotFound, "No metrics matrix has been computed yet")
			return nil, false
		}
		h.logger.WithError(err).Error("Failed to read latest matrix")
		respondError(w, http.StatusInternalServerError, "Failed to read metrics matrix")
		return nil, false
	}
	return &m, true
}

// GetLatest returns the latest metrics matrix
// GET /api/matrix/latest
func (h *MatrixHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if m, ok := h.latest(w); ok {
		respondJSON(w, http.StatusOK, m)
	}
}

// GetHealth returns the macro health projection of the latest matrix
// GET /api/matrix/health
func (h *MatrixHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	m, ok := h.latest(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":        m.AsOf,
		"macro_health": m.MacroHealth,
		"failed":       m.Failed(),
	})
}

// GetFeatures computes the feature vector of one indicator from stored history
// GET /api/features/{key}
func (h *MatrixHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if _, ok := h.catalog.Indicator(key); !ok {
		respondError(w, http.StatusNotFound, "Unknown indicator: "+key)
		return
	}

	fv, err := h.features.GetFeatures(r.Context(), key)
	if err != nil {
		h.logger.WithError(err).WithField("key", key).Error("Failed to compute features")
		respondError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"key":      key,
		"features": fv,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

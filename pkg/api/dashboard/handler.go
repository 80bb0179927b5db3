// Package dashboard serves the economist dashboard endpoints.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	coredash "zeno_agent/pkg/core/dashboard"
)

// Analyzer is satisfied by *dashboard.Analyst.
type Analyzer interface {
	Analyze(ctx context.Context, panel, query string) (coredash.Analysis, error)
}

type AnalyzeRequest struct {
	Panel string `json:"panel"`
	Query string `json:"query"`
}

type Handler struct {
	analyst Analyzer
	log     *logrus.Entry
}

func NewHandler(analyst Analyzer, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{analyst: analyst, log: logger.WithField("component", "api.dashboard")}
}

// HandleData returns the static dashboard snapshot.
func (h *Handler) HandleData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.Write(coredash.Data())
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	res, err := h.analyst.Analyze(r.Context(), req.Panel, req.Query)
	if err != nil {
		h.log.WithError(err).Error("dashboard analysis failed")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Analysis failed: " + err.Error()})
		return
	}
	json.NewEncoder(w).Encode(res)
}

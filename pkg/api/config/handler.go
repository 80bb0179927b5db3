package config

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	coreconfig "zeno_agent/pkg/core/config"
)

type Response struct {
	ActiveProvider string                            `json:"active_provider"`
	Available      []string                          `json:"available"`
	Agents         map[string]coreconfig.AgentConfig `json:"agents,omitempty"`
}

type SwitchRequest struct {
	Provider string `json:"provider"`
}

// ProviderSwitcher is the part of agent.Manager these endpoints use.
type ProviderSwitcher interface {
	ActiveProvider() string
	Available() []string
	Agents() map[string]coreconfig.AgentConfig
	SetGlobalProvider(name string) error
}

// Handler holds dependencies for config endpoints
type Handler struct {
	AgentMgr ProviderSwitcher
	log      *logrus.Entry
}

// NewHandler creates a new config handler
func NewHandler(agentMgr ProviderSwitcher, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{AgentMgr: agentMgr, log: logger.WithField("component", "api.config")}
}

func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")

	resp := Response{
		ActiveProvider: h.AgentMgr.ActiveProvider(),
		Available:      h.AgentMgr.Available(),
		Agents:         h.AgentMgr.Agents(),
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
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

	var req SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.AgentMgr.SetGlobalProvider(req.Provider); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.log.WithField("provider", req.Provider).Info("active provider switched")
	fmt.Fprintf(w, "Success: Switched to %s", req.Provider)
}

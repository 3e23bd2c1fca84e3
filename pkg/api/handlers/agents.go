package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"agentboard/pkg/models"
	"agentboard/pkg/registry"
	"agentboard/pkg/utils"
	"agentboard/pkg/validation"

	"github.com/gorilla/mux"
)

var agents *registry.Registry

// RegisterAgents registers HTTP handlers for the agent liveness registry.
// The stats and capabilities routes are registered before {id} so mux
// resolves them ahead of the wildcard.
func RegisterAgents(r *mux.Router, reg *registry.Registry) {
	agents = reg

	r.HandleFunc("/agents/register", registerAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents/register", listAgents).Methods(http.MethodGet)

	r.HandleFunc("/agents/register/stats", agentStats).Methods(http.MethodGet)
	r.HandleFunc("/agents/register/capabilities/{capability}", agentsByCapability).Methods(http.MethodGet)

	r.HandleFunc("/agents/register/{id}", getAgent).Methods(http.MethodGet)
	r.HandleFunc("/agents/register/{id}", deregisterAgent).Methods(http.MethodDelete)
	r.HandleFunc("/agents/register/{id}/heartbeat", agentHeartbeat).Methods(http.MethodPost)
}

// --- Handlers for /v1/agents/register ---

func registerAgent(w http.ResponseWriter, r *http.Request) {
	var in registry.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateRegistration(in.ID, in.Name, in.Capabilities, in.Metadata); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec := agents.Register(in)
	utils.JSONWrite(w, http.StatusCreated, rec)
}

func agentHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in registry.HeartbeatInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// an explicit empty status means "unchanged"
	if in.Status != nil && *in.Status == "" {
		in.Status = nil
	}
	var status string
	if in.Status != nil {
		status = string(*in.Status)
	}
	if err := validation.ValidateStatus(status); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := agents.Heartbeat(id, in)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "agent not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, rec)
}

func listAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.ListFilter{Capability: strings.TrimSpace(q.Get("capability"))}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		st := models.AgentStatus(strings.ToLower(s))
		if !models.ValidAgentStatus(st) {
			utils.JSONError(w, http.StatusBadRequest, "invalid status")
			return
		}
		f.Status = st
	}
	out := agents.List(f)
	if out == nil {
		out = []models.RegisteredAgent{}
	}
	utils.JSONWrite(w, http.StatusOK, out)
}

func agentStats(w http.ResponseWriter, r *http.Request) {
	utils.JSONWrite(w, http.StatusOK, agents.Stats())
}

func getAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := agents.Get(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "agent not found")
		return
	}
	utils.JSONWrite(w, http.StatusOK, rec)
}

func agentsByCapability(w http.ResponseWriter, r *http.Request) {
	capability := mux.Vars(r)["capability"]
	out := agents.FindByCapability(capability)
	if out == nil {
		out = []models.RegisteredAgent{}
	}
	utils.JSONWrite(w, http.StatusOK, out)
}

func deregisterAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !agents.Deregister(id) {
		utils.JSONError(w, http.StatusNotFound, "agent not found")
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]bool{"removed": true})
}

package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"agentboard/pkg/logger"
	"agentboard/pkg/models"
)

// ErrNotFound marks a lookup for an unregistered agent id.
var ErrNotFound = errors.New("agent not found")

// Registry is the process-wide liveness table. It is exclusively owned by
// the hosting process and only mutated through these operations; handlers
// run on concurrent goroutines, so access is mutex-guarded with
// last-writer-wins semantics per agent id. Nothing here survives a
// restart: agents are expected to re-register.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*models.RegisteredAgent
}

// New returns an empty registry. Tests construct a fresh instance per
// case; the server constructs exactly one.
func New() *Registry {
	return &Registry{agents: make(map[string]*models.RegisteredAgent)}
}

// RegisterInput carries the register payload. ID and Name are required.
type RegisterInput struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Model        string            `json:"model,omitempty"`
	Provider     string            `json:"provider,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Register upserts an agent record by id. A new id gets a fresh record
// with status online; an existing id is updated in place with metadata
// replaced wholesale, registeredAt preserved, and status reset to online.
func (r *Registry) Register(in RegisterInput) models.RegisteredAgent {
	now := time.Now().UTC().UnixNano()
	caps := in.Capabilities
	if caps == nil {
		caps = []string{}
	}
	meta := in.Metadata
	if meta == nil {
		meta = map[string]string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.agents[in.ID]; ok {
		existing.Name = in.Name
		existing.Model = in.Model
		existing.Provider = in.Provider
		existing.Capabilities = caps
		existing.Metadata = meta
		existing.Status = models.StatusOnline
		existing.LastHeartbeatTS = now
		logger.Info("agent_reregistered", "id", in.ID, "name", in.Name)
		return *existing
	}
	a := &models.RegisteredAgent{
		ID:              in.ID,
		Name:            in.Name,
		Model:           in.Model,
		Provider:        in.Provider,
		Capabilities:    caps,
		Metadata:        meta,
		Status:          models.StatusOnline,
		RegisteredTS:    now,
		LastHeartbeatTS: now,
	}
	r.agents[in.ID] = a
	logger.Info("agent_registered", "id", in.ID, "name", in.Name, "capabilities", len(caps))
	return *a
}

// HeartbeatInput carries the heartbeat payload. Pointer fields distinguish
// "absent" from "set to empty": an empty-string task field clears both
// task fields.
type HeartbeatInput struct {
	Status           *models.AgentStatus `json:"status,omitempty"`
	CurrentTaskID    *string             `json:"currentTaskId,omitempty"`
	CurrentTaskTitle *string             `json:"currentTaskTitle,omitempty"`
	Metadata         map[string]string   `json:"metadata,omitempty"`
}

// Heartbeat refreshes an agent's liveness. Status idle, or an explicit
// empty-string task field, clears the current task; metadata is merged
// key-by-key into the existing map.
func (r *Registry) Heartbeat(id string, in HeartbeatInput) (models.RegisteredAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return models.RegisteredAgent{}, ErrNotFound
	}
	a.LastHeartbeatTS = time.Now().UTC().UnixNano()

	if in.Status != nil {
		a.Status = *in.Status
	}

	clearTask := in.Status != nil && *in.Status == models.StatusIdle
	if in.CurrentTaskID != nil && *in.CurrentTaskID == "" {
		clearTask = true
	}
	if in.CurrentTaskTitle != nil && *in.CurrentTaskTitle == "" {
		clearTask = true
	}
	if clearTask {
		a.CurrentTaskID = ""
		a.CurrentTaskTitle = ""
	} else {
		if in.CurrentTaskID != nil {
			a.CurrentTaskID = *in.CurrentTaskID
		}
		if in.CurrentTaskTitle != nil {
			a.CurrentTaskTitle = *in.CurrentTaskTitle
		}
	}

	if len(in.Metadata) > 0 {
		if a.Metadata == nil {
			a.Metadata = map[string]string{}
		}
		for k, v := range in.Metadata {
			a.Metadata[k] = v
		}
	}
	logger.Debug("agent_heartbeat", "id", id, "status", string(a.Status))
	return *a, nil
}

// ListFilter narrows a List call. Empty fields match everything.
type ListFilter struct {
	Status     models.AgentStatus
	Capability string
}

// List returns registered agents matching the filter. Capability matching
// is case-insensitive membership.
func (r *Registry) List(f ListFilter) []models.RegisteredAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RegisteredAgent, 0, len(r.agents))
	for _, a := range r.agents {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Capability != "" && !hasCapability(a, f.Capability) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the record for id or ErrNotFound.
func (r *Registry) Get(id string) (models.RegisteredAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return models.RegisteredAgent{}, ErrNotFound
	}
	return *a, nil
}

// FindByCapability returns agents advertising the capability, excluding
// offline agents. Matching is case-insensitive.
func (r *Registry) FindByCapability(capability string) []models.RegisteredAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.RegisteredAgent
	for _, a := range r.agents {
		if a.Status == models.StatusOffline {
			continue
		}
		if hasCapability(a, capability) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats aggregates per-status counts and the sorted distinct capability
// set across all agents.
func (r *Registry) Stats() models.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := models.RegistryStats{Capabilities: []string{}}
	capSet := map[string]struct{}{}
	for _, a := range r.agents {
		stats.Total++
		switch a.Status {
		case models.StatusOnline:
			stats.Online++
		case models.StatusBusy:
			stats.Busy++
		case models.StatusIdle:
			stats.Idle++
		case models.StatusOffline:
			stats.Offline++
		}
		for _, c := range a.Capabilities {
			capSet[c] = struct{}{}
		}
	}
	for c := range capSet {
		stats.Capabilities = append(stats.Capabilities, c)
	}
	sort.Strings(stats.Capabilities)
	return stats
}

// Deregister removes the record and reports whether it existed.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return false
	}
	delete(r.agents, id)
	logger.Info("agent_deregistered", "id", id)
	return true
}

// MarkStale flips agents whose last heartbeat is older than the window to
// offline and returns the ids flipped. Called by the staleness sweeper.
func (r *Registry) MarkStale(window time.Duration) []string {
	cutoff := time.Now().UTC().Add(-window).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	var flipped []string
	for id, a := range r.agents {
		if a.Status == models.StatusOffline {
			continue
		}
		if a.LastHeartbeatTS < cutoff {
			a.Status = models.StatusOffline
			flipped = append(flipped, id)
		}
	}
	if len(flipped) > 0 {
		sort.Strings(flipped)
		logger.Info("agents_marked_stale", "count", len(flipped))
	}
	return flipped
}

func hasCapability(a *models.RegisteredAgent, capability string) bool {
	for _, c := range a.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}
	return false
}

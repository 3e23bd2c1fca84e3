package models

// AgentStatus is the self-reported liveness state of a registered agent.
type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"
	StatusBusy    AgentStatus = "busy"
	StatusIdle    AgentStatus = "idle"
	StatusOffline AgentStatus = "offline"
)

// ValidAgentStatus reports whether s is one of the closed enumeration.
func ValidAgentStatus(s AgentStatus) bool {
	switch s {
	case StatusOnline, StatusBusy, StatusIdle, StatusOffline:
		return true
	}
	return false
}

// RegisteredAgent is one entry in the liveness registry. Held in process
// memory only; a restart requires agents to re-register.
type RegisteredAgent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Model        string      `json:"model,omitempty"`
	Provider     string      `json:"provider,omitempty"`
	Capabilities []string    `json:"capabilities"`
	Status       AgentStatus `json:"status"`
	// CurrentTaskID and CurrentTaskTitle are set together and cleared
	// together; omitted from output when absent.
	CurrentTaskID    string            `json:"current_task_id,omitempty"`
	CurrentTaskTitle string            `json:"current_task_title,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	// RegisteredTS is set once and preserved across re-registration (ns).
	RegisteredTS int64 `json:"registered_ts"`
	// LastHeartbeatTS is updated on registration and every heartbeat (ns).
	LastHeartbeatTS int64 `json:"last_heartbeat_ts"`
}

// RegistryStats is the aggregate returned by the registry's Stats call.
type RegistryStats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Busy    int `json:"busy"`
	Idle    int `json:"idle"`
	Offline int `json:"offline"`
	// Capabilities is the sorted set of distinct capability names across
	// all registered agents.
	Capabilities []string `json:"capabilities"`
}

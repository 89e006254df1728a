// Package agents manages agent configuration records: which Azure AI agent
// backs each portal tile, where its documents live, and which search index
// covers them.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agoraworks/agora/pkg/store"
)

// Agent statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Agent types. Data agents answer over indexed documents; data analyzers
// additionally run the code interpreter over attached data files.
const (
	TypeDataAgent    = "Data Agent"
	TypeDataAnalyzer = "Data Analyzer"
)

// Agent is one agent configuration, stored as {id}.json in the agent
// container.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`

	// ContainerName holds the agent's uploaded documents.
	ContainerName string `json:"container_name,omitempty"`

	// SearchIndex is the Cognitive Search index covering the documents.
	SearchIndex string `json:"search_index,omitempty"`

	// ConnectionString points at the Azure AI project hosting the agent.
	ConnectionString string `json:"connection_string,omitempty"`

	// AgentID is the Azure AI Projects agent identifier.
	AgentID string `json:"agent_id,omitempty"`

	Categories []string `json:"categories,omitempty"`
	Enabled    bool     `json:"enabled"`
	Status     string   `json:"status"`
	AgentType  string   `json:"agent_type,omitempty"`

	// DataContainer/DataFile feed the code interpreter for data analyzers.
	DataContainer string `json:"data_container,omitempty"`
	DataFile      string `json:"data_file,omitempty"`

	// SendUserInfo prefixes chat messages with the signed-in user's name.
	SendUserInfo bool `json:"send_user_info,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the agent should appear on the dashboard.
func (a *Agent) IsActive() bool {
	return a.Enabled && a.Status == StatusActive
}

// ContainerNameFor derives an Azure-compliant container name for an agent:
// lowercase, alphanumeric and hyphens, at most 63 characters, no trailing
// hyphen.
func ContainerNameFor(agentID string) string {
	name := strings.ToLower("agent-" + agentID)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	name = b.String()
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.TrimRight(name, "-")
}

func decodeAgent(data []byte) (*Agent, error) {
	var a Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidData, err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("%w: agent record missing id", store.ErrInvalidData)
	}
	return &a, nil
}

func encodeAgent(a *Agent) ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidData, err)
	}
	return data, nil
}

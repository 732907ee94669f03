package model

import (
	"time"
)

// AgentStatus is the presence state of an agent.
type AgentStatus string

const (
	AgentOnline AgentStatus = "online"
	AgentBusy   AgentStatus = "busy"
	AgentIdle   AgentStatus = "idle"
	AgentError  AgentStatus = "error"
)

// Agent is an independently-configured AI agent. The orchestrator treats
// agents as read-only configuration.
type Agent struct {
	ID                   string      `json:"id"`
	UserID               string      `json:"user_id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description,omitempty"`
	Model                string      `json:"model"`
	Provider             string      `json:"provider"`
	SystemPrompt         string      `json:"system_prompt"`
	Tools                []string    `json:"tools,omitempty"`
	RoleType             string      `json:"role_type,omitempty"`
	RoleResponsibilities string      `json:"role_responsibilities,omitempty"`
	EventSubscriptions   []string    `json:"event_subscriptions,omitempty"`
	IsAdvisor            bool        `json:"is_advisor"`
	Status               AgentStatus `json:"status"`
	Version              int         `json:"version"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// CreateAgentRequest is the request to create a new agent.
type CreateAgentRequest struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	Model                string   `json:"model"`
	Provider             string   `json:"provider"`
	SystemPrompt         string   `json:"system_prompt"`
	Tools                []string `json:"tools,omitempty"`
	RoleType             string   `json:"role_type,omitempty"`
	RoleResponsibilities string   `json:"role_responsibilities,omitempty"`
	EventSubscriptions   []string `json:"event_subscriptions,omitempty"`
	IsAdvisor            bool     `json:"is_advisor,omitempty"`
}

// UpdateAgentRequest carries optional fields to patch an agent.
type UpdateAgentRequest struct {
	Name                 string   `json:"name,omitempty"`
	Description          string   `json:"description,omitempty"`
	Model                string   `json:"model,omitempty"`
	Provider             string   `json:"provider,omitempty"`
	SystemPrompt         string   `json:"system_prompt,omitempty"`
	Tools                []string `json:"tools,omitempty"`
	RoleType             string   `json:"role_type,omitempty"`
	RoleResponsibilities string   `json:"role_responsibilities,omitempty"`
}

// RoleTemplate provides defaults applied when an agent is created with a
// role and no explicit prompt or responsibilities.
type RoleTemplate struct {
	RoleType                string   `json:"role_type"`
	DisplayName             string   `json:"display_name"`
	DefaultSystemPrompt     string   `json:"default_system_prompt"`
	DefaultResponsibilities string   `json:"default_responsibilities"`
	SuggestedTools          []string `json:"suggested_tools,omitempty"`
}

package domain

import "time"

type Answer struct {
	Query      string     `json:"query"`
	Source     DataSource `json:"source"`
	Response   string     `json:"response"`
	References []string   `json:"references"`
}

// ChatResult is the full pipeline response for one query within a session.
type ChatResult struct {
	Query       string     `json:"query"`
	Source      DataSource `json:"source"`
	Response    string     `json:"response"`
	References  []string   `json:"references,omitempty"`
	ChatHistory []ChatTurn `json:"chat_history"`
}

type AgentLimits struct {
	MaxIterations  int
	Timeout        time.Duration
	PlannerTimeout time.Duration
	ToolTimeout    time.Duration
}

type AgentStep struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
}

type AgentToolEvent struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Status string `json:"status"`
	Output string `json:"output"`
}

type AgentRunResult struct {
	Query          string           `json:"query"`
	Response       string           `json:"response"`
	Source         DataSource       `json:"source,omitempty"`
	Iterations     int              `json:"iterations"`
	ToolEvents     []AgentToolEvent `json:"tool_events,omitempty"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
}

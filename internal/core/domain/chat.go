package domain

import "time"

// DefaultHistoryWindow bounds how many recent turns are fed back into prompts.
const DefaultHistoryWindow = 5

type ChatTurn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	SessionID string     `json:"session_id"`
	Title     string     `json:"title"`
	Turns     []ChatTurn `json:"turns"`
}

type SessionSummary struct {
	SessionID   string     `json:"session_id"`
	Title       string     `json:"title"`
	LastUpdated *time.Time `json:"last_updated"`
}

// TurnRecorded is published after a turn has been persisted.
type TurnRecorded struct {
	EventID   string     `json:"event_id"`
	SessionID string     `json:"session_id"`
	Source    DataSource `json:"source"`
	Turn      ChatTurn   `json:"turn"`
}

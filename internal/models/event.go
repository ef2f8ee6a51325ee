package models

import "time"

// EventType identifies a Live-Event Fan-out event kind (spec.md §4.6).
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunStdout     EventType = "run.stdout"
	EventRunStderr     EventType = "run.stderr"
	EventRunFinished   EventType = "run.finished"
	EventTriggerOverrun EventType = "trigger.overrun"
	EventEnvReady      EventType = "env.ready"
	EventEnvFailed     EventType = "env.failed"
)

// Event is one message published on the Live-Event Fan-out bus. Payload is
// type-specific (e.g. a stdout chunk, a finished ExecutionRecord summary)
// and is left as `any` so the bus stays decoupled from every payload shape;
// consumers type-switch on Type.
type Event struct {
	Type      EventType `json:"type"`
	ScriptID  int64     `json:"script_id"`
	RunID     int64     `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Package models defines the durable entities shared by the Store, the
// Execution Engine, the Environment Manager, and the Trigger Scheduler.
package models

import (
	"time"
)

// Script represents one user-authored program.
type Script struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	Slug               string            `json:"slug"`
	FolderID           *int64            `json:"folder_id,omitempty"`
	Content            string            `json:"content"`
	InterpreterVersion string            `json:"interpreter_version"`
	Requirements       string            `json:"requirements"`
	Environment        map[string]string `json:"environment"`
	Enabled            bool              `json:"enabled"`
	AutoSave           bool              `json:"auto_save"`
	EmailOnCompletion  bool              `json:"email_on_completion"`
	EmailRecipients    []string          `json:"email_recipients"`
	TimeoutSeconds     *int              `json:"timeout_seconds,omitempty"`
	RunTotal           int64             `json:"run_total"`
	RunSuccess         int64             `json:"run_success"`
	LastRunAt          *time.Time        `json:"last_run_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Folder is a tree node grouping Scripts.
type Folder struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TriggerKind identifies how a Trigger fires.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerManual   TriggerKind = "manual"
	TriggerStartup  TriggerKind = "startup"
)

// Valid reports whether k is one of the known trigger kinds.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerCron, TriggerInterval, TriggerManual, TriggerStartup:
		return true
	}
	return false
}

// Trigger is a policy that fires RunRequests for a Script.
type Trigger struct {
	ID             int64       `json:"id"`
	ScriptID       int64       `json:"script_id"`
	Kind           TriggerKind `json:"kind"`
	CronExpr       string      `json:"cron_expr,omitempty"`
	CronTimezone   string      `json:"cron_timezone,omitempty"`
	IntervalSecs   int         `json:"interval_seconds,omitempty"`
	Enabled        bool        `json:"enabled"`
	LastFiredAt    *time.Time  `json:"last_fired_at,omitempty"`
	NextFireAt     *time.Time  `json:"next_fire_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TriggeredBy identifies what caused a run to be requested.
type TriggeredBy string

const (
	TriggeredBySchedule TriggeredBy = "schedule"
	TriggeredByManual   TriggeredBy = "manual"
	TriggeredByURL      TriggeredBy = "url"
	TriggeredByStartup  TriggeredBy = "startup"
)

// RunStatus is the lifecycle status of an ExecutionRecord.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunTimeout RunStatus = "timeout"
)

// ExecutionRecord is the durable, write-once-at-terminal record of one run.
type ExecutionRecord struct {
	ID               int64       `json:"id"`
	ScriptID         int64       `json:"script_id"`
	TriggerID        *int64      `json:"trigger_id,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       *time.Time  `json:"finished_at,omitempty"`
	DurationMs       *int64      `json:"duration_ms,omitempty"`
	Status           RunStatus   `json:"status"`
	ExitCode         *int        `json:"exit_code,omitempty"`
	Stdout           string      `json:"stdout"`
	StdoutTruncated  bool        `json:"stdout_truncated"`
	Stderr           string      `json:"stderr"`
	StderrTruncated  bool        `json:"stderr_truncated"`
	MemoryMB         *float64    `json:"memory_mb,omitempty"`
	CPUPercent       *float64    `json:"cpu_percent,omitempty"`
	TriggeredBy      TriggeredBy `json:"triggered_by"`
}

// IsTerminal reports whether the record has reached a terminal status.
func (r *ExecutionRecord) IsTerminal() bool {
	return r.Status != RunRunning
}

// ExecutionRecordOption customizes a new ExecutionRecord at creation time.
type ExecutionRecordOption func(*ExecutionRecord)

// WithTriggerID attaches the originating Trigger id to the record.
func WithTriggerID(id int64) ExecutionRecordOption {
	return func(r *ExecutionRecord) { r.TriggerID = &id }
}

// NewExecutionRecordBuilder starts a new running ExecutionRecord for scriptID.
func NewExecutionRecordBuilder(scriptID int64) *ExecutionRecordBuilder {
	return &ExecutionRecordBuilder{scriptID: scriptID}
}

// ExecutionRecordBuilder constructs an ExecutionRecord in the QUEUED/PREPARING
// transition, mirroring the teacher's Status-builder pattern.
type ExecutionRecordBuilder struct {
	scriptID int64
}

// Create returns a new running ExecutionRecord, applying any options.
func (b *ExecutionRecordBuilder) Create(triggeredBy TriggeredBy, startedAt time.Time, opts ...ExecutionRecordOption) *ExecutionRecord {
	rec := &ExecutionRecord{
		ScriptID:    b.scriptID,
		StartedAt:   startedAt,
		Status:      RunRunning,
		TriggeredBy: triggeredBy,
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// Settings is a key-value table; SettingsKeyAPIKey is the distinguished
// key holding the URL-trigger API key.
type Settings struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const SettingsKeyAPIKey = "url_trigger_api_key"

// User is the minimal account record for the HTTP surface.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	Theme        string    `json:"theme"`
	Timezone     string    `json:"timezone"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

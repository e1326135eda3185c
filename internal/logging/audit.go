package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names one kind of narrative-engine event in the audit trail.
type AuditEventType string

const (
	// Run lifecycle
	AuditRunStart  AuditEventType = "run_start"
	AuditRunResume AuditEventType = "run_resume"
	AuditRunEnd    AuditEventType = "run_end"

	// Generation calls
	AuditGenerateRequest AuditEventType = "generate_request"
	AuditGenerateResult  AuditEventType = "generate_result"
	AuditGenerateError   AuditEventType = "generate_error"
	AuditDecodeRetry     AuditEventType = "decode_retry"

	// Ledger
	AuditSnapshotCapture AuditEventType = "snapshot_capture"
	AuditSnapshotEvict   AuditEventType = "snapshot_evict"
	AuditSnapshotRevert  AuditEventType = "snapshot_revert"
	AuditRevertRefused   AuditEventType = "revert_refused"

	// Rejected upstream mutations
	AuditMutationRejected AuditEventType = "mutation_rejected"

	// Cross-run record
	AuditLegacyPurchase AuditEventType = "legacy_purchase"
)

// AuditEvent is one JSON line in the audit log.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	SessionID  string                 `json:"session,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens the audit log. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()

	date := time.Now().Format("2006-01-02")
	file, err := os.OpenFile(filepath.Join(dir, fmt.Sprintf("%s_audit.log", date)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditLogger stamps events with a session id.
type AuditLogger struct {
	sessionID string
}

// AuditWithSession creates an audit logger scoped to a session
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes the event if the audit log is open.
func (a *AuditLogger) Log(event AuditEvent) {
	if a != nil && event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// Event is shorthand for a successful event with a target and message.
func (a *AuditLogger) Event(eventType AuditEventType, target, msg string) {
	a.Log(AuditEvent{EventType: eventType, Target: target, Success: true, Message: msg})
}

// Failure records an event carrying an error.
func (a *AuditLogger) Failure(eventType AuditEventType, target string, err error) {
	ev := AuditEvent{EventType: eventType, Target: target}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}

// Timed records an event with its duration.
func (a *AuditLogger) Timed(eventType AuditEventType, target string, start time.Time, err error) {
	ev := AuditEvent{
		EventType:  eventType,
		Target:     target,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}

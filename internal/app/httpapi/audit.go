package httpapi

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/logging"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
)

// auditRingSize bounds the in-memory trail.
const auditRingSize = 512

// AuditEntry records one state-changing operation.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	TraceID    string    `json:"traceId,omitempty"`
	Outcome    string    `json:"outcome"`
}

// Auditor keeps a bounded in-memory trail of operations, optionally mirrored
// to a JSONL file.
type Auditor struct {
	mu      sync.Mutex
	entries []AuditEntry
	next    int
	full    bool
	sink    *os.File
	log     *logger.Logger
}

// NewAuditor creates the auditor. file may be empty for memory-only
// operation.
func NewAuditor(file string, log *logger.Logger) (*Auditor, error) {
	if log == nil {
		log = logger.NewDefault("audit")
	}
	a := &Auditor{
		entries: make([]AuditEntry, auditRingSize),
		log:     log,
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		a.sink = f
	}
	return a, nil
}

// Close releases the file sink if one is open.
func (a *Auditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sink == nil {
		return nil
	}
	err := a.sink.Close()
	a.sink = nil
	return err
}

// Record appends an entry, taking actor and trace from the request context.
func (a *Auditor) Record(ctx context.Context, action, entityType, entityID string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	entry := AuditEntry{
		Timestamp:  time.Now().UTC(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    logging.GetUserID(ctx),
		TraceID:    logging.GetTraceID(ctx),
		Outcome:    outcome,
	}

	a.mu.Lock()
	a.entries[a.next] = entry
	a.next = (a.next + 1) % auditRingSize
	if a.next == 0 {
		a.full = true
	}
	sink := a.sink
	a.mu.Unlock()

	if sink != nil {
		line, err := json.Marshal(entry)
		if err == nil {
			line = append(line, '\n')
			if _, err := sink.Write(line); err != nil {
				a.log.WithError(err).Warn("audit sink write failed")
			}
		}
	}
}

// Recent returns up to limit entries, newest first.
func (a *Auditor) Recent(limit int) []AuditEntry {
	if limit <= 0 || limit > auditRingSize {
		limit = auditRingSize
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.next
	if a.full {
		size = auditRingSize
	}
	if limit > size {
		limit = size
	}
	out := make([]AuditEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (a.next - i + auditRingSize) % auditRingSize
		out = append(out, a.entries[idx])
	}
	return out
}

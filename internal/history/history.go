// Package history keeps an audit trail of stage invocations, so a re-run
// that overwrites an artifact still leaves a record of what was generated.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record describes one stage invocation.
type Record struct {
	ID             string    `json:"id"`
	Module         string    `json:"module"`
	Stage          string    `json:"stage"`
	StartedAt      time.Time `json:"started_at"`
	Model          string    `json:"model"`
	Template       string    `json:"template,omitempty"`
	ResponseKind   string    `json:"response_kind,omitempty"`
	ResponseDigest string    `json:"response_digest,omitempty"`
	RawLog         string    `json:"raw_log,omitempty"`
	Artifact       string    `json:"artifact,omitempty"`
	ArtifactDigest string    `json:"artifact_digest,omitempty"`
	Extracted      bool      `json:"extracted"`
	DurationMS     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
}

// NewRecord stamps a record with a fresh ID.
func NewRecord(module, stage string, started time.Time) Record {
	return Record{ID: uuid.NewString(), Module: module, Stage: stage, StartedAt: started}
}

// Recorder persists invocation records.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// Nop discards records.
type Nop struct{}

func (Nop) Append(context.Context, Record) error { return nil }

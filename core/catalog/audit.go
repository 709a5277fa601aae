package catalog

import (
	"time"

	"songcatalog/model"

	"github.com/google/uuid"
)

// AuditInput carries the fields of an entry that the mutation decides.
type AuditInput struct {
	Action        model.AuditAction
	Actor         string
	Details       string
	Scope         model.BlockScope
	Regions       []string
	ReasonCode    string
	PreviousState model.EffectiveStatus
	NewState      model.EffectiveStatus
}

// AuditRecorder stamps and prepends audit entries.
type AuditRecorder struct {
	now func() time.Time
}

// NewAuditRecorder returns a recorder using now as its clock.
func NewAuditRecorder(now func() time.Time) *AuditRecorder {
	if now == nil {
		now = time.Now
	}
	return &AuditRecorder{now: now}
}

// Now returns the recorder's current instant in UTC.
func (r *AuditRecorder) Now() time.Time {
	return r.now().UTC()
}

// Record builds an entry timestamped at, inserts it at the head of the
// song's log and returns it.
func (r *AuditRecorder) Record(song *model.Song, in AuditInput, at time.Time) model.AuditEntry {
	entry := model.AuditEntry{
		ID:            "audit-" + uuid.NewString(),
		Timestamp:     at,
		Action:        in.Action,
		Actor:         in.Actor,
		Details:       in.Details,
		Scope:         in.Scope,
		Regions:       append([]string(nil), in.Regions...),
		ReasonCode:    in.ReasonCode,
		PreviousState: in.PreviousState,
		NewState:      in.NewState,
	}
	song.AuditLog.Prepend(entry)
	return entry
}

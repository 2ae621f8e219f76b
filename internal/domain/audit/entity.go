package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one privileged action (matches audit_log table).
type Entry struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	ActorID    uuid.NullUUID   `db:"actor_id" json:"actor_id,omitempty"`
	ActorName  *string         `db:"actor_name" json:"actor_name,omitempty"`
	Action     string          `db:"action" json:"action"`
	TargetType string          `db:"target_type" json:"target_type"`
	TargetID   string          `db:"target_id" json:"target_id"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Actions recorded by the dashboard.
const (
	ActionRolesSet        = "user.roles_set"
	ActionStatusSet       = "user.status_set"
	ActionUserDeleted     = "user.deleted"
	ActionSettingsUpdated = "settings.updated"
	ActionBackupCreated   = "backup.created"
	ActionCommandAdded    = "department.command_added"
	ActionCommandRemoved  = "department.command_removed"
	ActionDocumentUpdated = "department.document_updated"
	ActionSyncRun         = "sync.run"
)

// Filter for listing entries
type Filter struct {
	ActorID    *uuid.UUID
	Action     *string
	TargetType *string
	Limit      int
	Offset     int
}

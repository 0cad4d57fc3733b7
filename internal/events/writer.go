package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event types emitted by the engine.
const (
	CompanyCreated       = "company.created"
	ProjectCreated       = "project.created"
	ProjectUpdated       = "project.updated"
	ProjectDeleted       = "project.deleted"
	ProjectStatusChanged = "project.status_changed"
	ProjectDelivered     = "project.delivered"
	ProjectUndelivered   = "project.undelivered"
	GanttReconciled      = "gantt.reconciled"
	TaskCreated          = "task.created"
	TaskUpdated          = "task.updated"
	TaskDeleted          = "task.deleted"
	TasksReordered       = "task.reordered"
	UserCreated          = "user.created"
	APIKeyCreated        = "apikey.created"
	APIKeyRevoked        = "apikey.revoked"
)

// Entity kinds.
const (
	KindCompany = "company"
	KindProject = "project"
	KindTask    = "task"
	KindUser    = "user"
	KindAPIKey  = "api_key"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Entry is one audit row. ProjectID is zero for workspace-wide events.
type Entry struct {
	Type       string
	ProjectID  int64
	EntityKind string
	EntityID   string
	Actor      string
	Payload    EventPayload
}

// Append writes the entry inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	payload := e.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	var project any
	if e.ProjectID > 0 {
		project = strconv.FormatInt(e.ProjectID, 10)
	}
	actor := e.Actor
	if actor == "" {
		actor = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, project, e.EntityKind, nullable(e.EntityID), actor, string(data))
	return err
}

// ID formats a numeric entity id.
func ID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

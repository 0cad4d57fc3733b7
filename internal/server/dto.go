package server

import (
	"encoding/json"

	"reelboard/internal/domain"
	"reelboard/internal/engine"
	"reelboard/internal/gantt"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateCompanyRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type CreateProjectRequest struct {
	CompanyID        int64  `json:"company_id"`
	Name             string `json:"name"`
	Status           string `json:"status,omitempty" enum:"計画中,進行中,レビュー中,完了"`
	DueDate          string `json:"due_date"`
	Assignee         string `json:"assignee"`
	VideoAxis        string `json:"video_axis,omitempty"`
	CompletionLength *int   `json:"completion_length,omitempty"`
	RawMaterialURL   string `json:"raw_material_url,omitempty"`
	ScriptURL        string `json:"script_url,omitempty"`
	FinalVideoURL    string `json:"final_video_url,omitempty"`
}

type UpdateProjectRequest struct {
	CompanyID        *int64  `json:"company_id,omitempty"`
	Name             *string `json:"name,omitempty"`
	Status           *string `json:"status,omitempty" enum:"計画中,進行中,レビュー中,完了"`
	DueDate          *string `json:"due_date,omitempty"`
	Assignee         *string `json:"assignee,omitempty"`
	VideoAxis        *string `json:"video_axis,omitempty"`
	CompletionLength *int    `json:"completion_length,omitempty"`
	RawMaterialURL   *string `json:"raw_material_url,omitempty"`
	ScriptURL        *string `json:"script_url,omitempty"`
	FinalVideoURL    *string `json:"final_video_url,omitempty"`
	Delivered        *bool   `json:"is_delivered,omitempty"`
}

func (r UpdateProjectRequest) options(id int64, actor string) engine.ProjectUpdateOptions {
	return engine.ProjectUpdateOptions{
		ID:               id,
		CompanyID:        r.CompanyID,
		Name:             r.Name,
		Status:           r.Status,
		DueDate:          r.DueDate,
		Assignee:         r.Assignee,
		VideoAxis:        r.VideoAxis,
		CompletionLength: r.CompletionLength,
		RawMaterialURL:   r.RawMaterialURL,
		ScriptURL:        r.ScriptURL,
		FinalVideoURL:    r.FinalVideoURL,
		Delivered:        r.Delivered,
		Actor:            actor,
	}
}

type ToggleDeliveredRequest struct {
	Delivered bool `json:"delivered"`
}

type ReorderRequest struct {
	IDs []int64 `json:"ids" minItems:"1"`
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role" enum:"admin,editor,client,viewer"`
	Password string `json:"password"`
}

type CreateAPIKeyRequest struct {
	UserID int64  `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Response payloads

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

// TaskResponse wraps a task and any request fields that were ignored.
type TaskResponse struct {
	Data     gantt.TaskView `json:"data"`
	Warnings []FieldError   `json:"warnings,omitempty"`
}

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func fieldErrors(errs []gantt.ValidationError) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		out = append(out, FieldError{Field: e.Field, Reason: e.Reason})
	}
	return out
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

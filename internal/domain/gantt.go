package domain

// Dependency types. Only FS drives the generated stages; the rest are stored as given.
const (
	DepFinishToStart  = "FS"
	DepStartToStart   = "SS"
	DepFinishToFinish = "FF"
	DepStartToFinish  = "SF"
)

// Task origins.
const (
	OriginAuto   = "auto"
	OriginManual = "manual"
)

type Dependency struct {
	TaskID int64  `json:"task_id"`
	Type   string `json:"type" enum:"FS,SS,FF,SF"`
}

// TaskHistoryEntry records one field change. Old and New hold strings or numbers.
type TaskHistoryEntry struct {
	Field     string `json:"field"`
	Old       any    `json:"old"`
	New       any    `json:"new"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

type Task struct {
	ID           int64              `json:"id"`
	Title        string             `json:"title"`
	ProjectID    *int64             `json:"project_id"`
	ProjectName  string             `json:"project_name,omitempty"`
	CompanyName  string             `json:"company_name,omitempty"`
	Color        string             `json:"color,omitempty"`
	Type         string             `json:"type"`
	Status       string             `json:"status"`
	Assignee     string             `json:"assignee,omitempty"`
	Priority     string             `json:"priority,omitempty"`
	Progress     int                `json:"progress"`
	DueDate      string             `json:"due_date,omitempty"`
	PlanStart    string             `json:"plan_start,omitempty"`
	PlanEnd      string             `json:"plan_end,omitempty"`
	ActualStart  string             `json:"actual_start,omitempty"`
	ActualEnd    string             `json:"actual_end,omitempty"`
	OrderIndex   int                `json:"order_index"`
	Dependencies []Dependency       `json:"dependencies"`
	CreatedBy    string             `json:"created_by,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
	UpdatedBy    string             `json:"updated_by,omitempty"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	History      []TaskHistoryEntry `json:"history"`
	TaskOrigin   string             `json:"task_origin"`
	AutoStage    string             `json:"auto_stage,omitempty"`
	UserModified bool               `json:"user_modified"`
}

// Clone returns a copy that shares no mutable state with t.
func (t Task) Clone() Task {
	c := t
	if t.ProjectID != nil {
		id := *t.ProjectID
		c.ProjectID = &id
	}
	c.Dependencies = append([]Dependency{}, t.Dependencies...)
	c.History = append([]TaskHistoryEntry{}, t.History...)
	return c
}

// IsAuto reports whether the task was generated from the stage template.
func (t Task) IsAuto() bool {
	return t.TaskOrigin == OriginAuto
}

type StatusEvent struct {
	Status    string `json:"status"`
	ChangedAt string `json:"changed_at" format:"date-time"`
	ChangedBy string `json:"changed_by"`
}

type TimelineSegment struct {
	Status    string `json:"status"`
	Start     string `json:"start" format:"date"`
	End       string `json:"end" format:"date"`
	Days      int    `json:"days"`
	ChangedAt string `json:"changed_at" format:"date-time"`
	ChangedBy string `json:"changed_by"`
}

type TimelineDay struct {
	Date     string `json:"date" format:"date"`
	Status   string `json:"status"`
	IsChange bool   `json:"is_change"`
}

type Timeline struct {
	ProjectID int64             `json:"project_id"`
	Start     string            `json:"start,omitempty" format:"date"`
	End       string            `json:"end,omitempty" format:"date"`
	Segments  []TimelineSegment `json:"segments"`
	Days      []TimelineDay     `json:"days"`
	History   []StatusEvent     `json:"history"`
}

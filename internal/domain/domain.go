package domain

// Project statuses.
const (
	StatusPlanning   = "計画中"
	StatusInProgress = "進行中"
	StatusReview     = "レビュー中"
	StatusDone       = "完了"
)

// Task statuses that never appear on projects.
const (
	TaskStatusPending = "未着手"
)

// User roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleClient = "client"
	RoleViewer = "viewer"
)

// Video axes.
const (
	VideoAxisLong  = "LONG"
	VideoAxisShort = "SHORT"
)

type Company struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID               int64  `json:"id"`
	CompanyID        int64  `json:"company_id"`
	Name             string `json:"name"`
	Status           string `json:"status" enum:"計画中,進行中,レビュー中,完了"`
	DueDate          string `json:"due_date,omitempty" format:"date"`
	DeliveryDate     string `json:"delivery_date,omitempty" format:"date"`
	Assignee         string `json:"assignee,omitempty"`
	Delivered        bool   `json:"is_delivered"`
	VideoAxis        string `json:"video_axis" enum:"LONG,SHORT"`
	Color            string `json:"color,omitempty"`
	CompletionLength *int   `json:"completion_length,omitempty"`
	Progress         int    `json:"progress"`
	RawMaterialURL   string `json:"raw_material_url,omitempty"`
	ScriptURL        string `json:"script_url,omitempty"`
	FinalVideoURL    string `json:"final_video_url,omitempty"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	UpdatedAt        string `json:"updated_at" format:"date-time"`
}

// Finished reports whether the project counts as complete for scheduling.
func (p Project) Finished() bool {
	return p.Delivered || p.Status == StatusDone
}

type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role" enum:"admin,editor,client,viewer"`
	Active       bool   `json:"is_active"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DashboardStats aggregates catalog and gantt counters.
type DashboardStats struct {
	TotalProjects     int            `json:"total_projects"`
	ActiveProjects    int            `json:"active_projects"`
	CompletedProjects int            `json:"completed_projects"`
	PendingProjects   int            `json:"pending_projects"`
	TotalCompanies    int            `json:"total_companies"`
	TotalTasks        int            `json:"total_tasks"`
	TasksByStatus     map[string]int `json:"tasks_by_status"`
}

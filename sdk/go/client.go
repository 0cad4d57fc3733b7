package reelboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Reelboard HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API prefix,
// e.g. http://localhost:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Company struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	CreatedAt string `json:"created_at"`
}

type Project struct {
	ID               int64  `json:"id"`
	CompanyID        int64  `json:"company_id"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	DueDate          string `json:"due_date,omitempty"`
	DeliveryDate     string `json:"delivery_date,omitempty"`
	Assignee         string `json:"assignee,omitempty"`
	Delivered        bool   `json:"is_delivered"`
	VideoAxis        string `json:"video_axis"`
	Color            string `json:"color,omitempty"`
	CompletionLength *int   `json:"completion_length,omitempty"`
	Progress         int    `json:"progress"`
	RawMaterialURL   string `json:"raw_material_url,omitempty"`
	ScriptURL        string `json:"script_url,omitempty"`
	FinalVideoURL    string `json:"final_video_url,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// NewProject is the create payload for a project.
type NewProject struct {
	CompanyID        int64  `json:"company_id"`
	Name             string `json:"name"`
	Status           string `json:"status,omitempty"`
	DueDate          string `json:"due_date"`
	Assignee         string `json:"assignee"`
	VideoAxis        string `json:"video_axis,omitempty"`
	CompletionLength *int   `json:"completion_length,omitempty"`
}

type Dependency struct {
	TaskID int64  `json:"task_id"`
	Type   string `json:"type"`
}

type HistoryEntry struct {
	Field     string `json:"field"`
	Old       any    `json:"old"`
	New       any    `json:"new"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
}

// Task is the chart-ready task returned by the gantt endpoints.
type Task struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title"`
	Name             string         `json:"name"`
	ProjectID        *int64         `json:"project_id"`
	ProjectName      string         `json:"project_name,omitempty"`
	CompanyName      string         `json:"company_name,omitempty"`
	Color            string         `json:"color,omitempty"`
	Type             string         `json:"type"`
	Status           string         `json:"status"`
	Assignee         string         `json:"assignee,omitempty"`
	Priority         string         `json:"priority,omitempty"`
	Progress         int            `json:"progress"`
	DueDate          string         `json:"due_date,omitempty"`
	PlanStart        string         `json:"plan_start,omitempty"`
	PlanEnd          string         `json:"plan_end,omitempty"`
	ActualStart      string         `json:"actual_start,omitempty"`
	ActualEnd        string         `json:"actual_end,omitempty"`
	Start            string         `json:"start,omitempty"`
	End              string         `json:"end,omitempty"`
	OrderIndex       int            `json:"order_index"`
	Dependencies     []Dependency   `json:"dependencies"`
	DependenciesText string         `json:"dependencies_text"`
	Notes            string         `json:"notes,omitempty"`
	TaskOrigin       string         `json:"task_origin"`
	AutoStage        string         `json:"auto_stage,omitempty"`
	UserModified     bool           `json:"user_modified"`
	IsGeneral        bool           `json:"is_general"`
	History          []HistoryEntry `json:"history,omitempty"`
}

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// TaskResult is a task plus the request fields the server ignored.
type TaskResult struct {
	Data     Task         `json:"data"`
	Warnings []FieldError `json:"warnings,omitempty"`
}

// TaskListing is the gantt listing. Meta holds every visible task before
// filtering and the filter options they offer.
type TaskListing struct {
	Data []Task `json:"data"`
	Meta struct {
		AllTasks []Task `json:"all_tasks"`
		Total    int    `json:"total"`
		Filters  struct {
			Projects  []map[string]any `json:"projects"`
			Assignees []string         `json:"assignees"`
			Statuses  []string         `json:"statuses"`
		} `json:"filters"`
	} `json:"meta"`
}

// TaskQuery mirrors the gantt listing query parameters. Empty fields are omitted.
type TaskQuery struct {
	View      string
	ProjectID string
	Assignee  string
	Status    string
	Keyword   string
	StartDate string
	EndDate   string
}

func (q TaskQuery) encode() string {
	v := url.Values{}
	for k, s := range map[string]string{
		"view":       q.View,
		"project_id": q.ProjectID,
		"assignee":   q.Assignee,
		"status":     q.Status,
		"keyword":    q.Keyword,
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
	} {
		if s != "" {
			v.Set(k, s)
		}
	}
	return v.Encode()
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) CreateCompany(ctx context.Context, name, code string) (Company, error) {
	var resp Company
	err := c.do(ctx, http.MethodPost, "companies", map[string]string{"name": name, "code": code}, &resp)
	return resp, err
}

func (c *Client) ListCompanies(ctx context.Context) ([]Company, error) {
	var resp []Company
	err := c.do(ctx, http.MethodGet, "companies", nil, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, p NewProject) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", p, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id int64) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp, err
}

// UpdateProject sends a partial update; only the keys present in fields change.
func (c *Client) UpdateProject(ctx context.Context, id int64, fields map[string]any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPut, "projects/"+strconv.FormatInt(id, 10), fields, &resp)
	return resp, err
}

func (c *Client) ToggleDelivered(ctx context.Context, id int64, delivered bool) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("projects/%d/toggle-delivered", id)
	err := c.do(ctx, http.MethodPost, endpoint, map[string]bool{"delivered": delivered}, &resp)
	return resp, err
}

// GanttTasks lists chart-ready tasks.
func (c *Client) GanttTasks(ctx context.Context, q TaskQuery) (TaskListing, error) {
	endpoint := "gantt/tasks"
	if qs := q.encode(); qs != "" {
		endpoint += "?" + qs
	}
	var resp TaskListing
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTask creates a manual task. fields uses the API's snake_case keys.
func (c *Client) CreateTask(ctx context.Context, fields map[string]any) (TaskResult, error) {
	var resp TaskResult
	err := c.do(ctx, http.MethodPost, "tasks", fields, &resp)
	return resp, err
}

// UpdateTask patches a task. Fields the server cannot interpret come back
// as warnings instead of failing the request.
func (c *Client) UpdateTask(ctx context.Context, id int64, fields map[string]any) (TaskResult, error) {
	var resp TaskResult
	err := c.do(ctx, http.MethodPut, "tasks/"+strconv.FormatInt(id, 10), fields, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+strconv.FormatInt(id, 10), nil, nil)
}

// ReorderTasks assigns order_index from the position in ids and returns the
// ids that matched no task.
func (c *Client) ReorderTasks(ctx context.Context, ids []int64) ([]Task, []int64, error) {
	var resp struct {
		Updated []Task  `json:"updated"`
		Missing []int64 `json:"missing"`
	}
	err := c.do(ctx, http.MethodPost, "gantt/tasks/reorder", map[string]any{"ids": ids}, &resp)
	return resp.Updated, resp.Missing, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

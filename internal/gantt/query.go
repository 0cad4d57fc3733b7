package gantt

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"reelboard/internal/domain"
)

// Filters narrows a task listing. Empty fields match everything.
// A ProjectID pointing at 0 selects tasks outside any project.
type Filters struct {
	ProjectID *int64 `json:"project_id,omitempty"`
	Assignee  string `json:"assignee,omitempty"`
	Status    string `json:"status,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// FiltersFromParams reads filters from query parameters.
func FiltersFromParams(params map[string]string) (Filters, error) {
	f := Filters{
		Assignee: strings.TrimSpace(params["assignee"]),
		Status:   strings.TrimSpace(params["status"]),
		Keyword:  strings.TrimSpace(params["keyword"]),
	}
	switch raw := strings.TrimSpace(params["project_id"]); raw {
	case "":
	case "general", "none":
		zero := int64(0)
		f.ProjectID = &zero
	default:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return Filters{}, invalid("project_id", "must be a project id or 'general'")
		}
		f.ProjectID = &id
	}
	for _, d := range []struct {
		field string
		dst   *string
	}{{"start_date", &f.StartDate}, {"end_date", &f.EndDate}} {
		v := strings.TrimSpace(params[d.field])
		if err := checkDate(d.field, v); err != nil {
			return Filters{}, err
		}
		*d.dst = v
	}
	return f, nil
}

// Match reports whether a task passes every filter.
func (f Filters) Match(t domain.Task) bool {
	if f.ProjectID != nil {
		var pid int64
		if t.ProjectID != nil {
			pid = *t.ProjectID
		}
		if pid != *f.ProjectID {
			return false
		}
	}
	if f.Assignee != "" && t.Assignee != f.Assignee {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		hay := strings.ToLower(t.Title + "\n" + t.Notes + "\n" + t.ProjectName)
		if !strings.Contains(hay, kw) {
			return false
		}
	}
	if start, ok := parseDate(f.StartDate, nil); ok {
		if end, ok := parseDate(t.PlanEnd, nil); ok && end.Before(start) {
			return false
		}
	}
	if end, ok := parseDate(f.EndDate, nil); ok {
		if start, ok := parseDate(t.PlanStart, nil); ok && start.After(end) {
			return false
		}
	}
	return true
}

// FilterTasks keeps the tasks matching f, preserving input order.
func FilterTasks(tasks []domain.Task, f Filters) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Viewer is the identity a listing is produced for.
type Viewer struct {
	Name string
	Role string
}

// CanSee reports whether the viewer may see t: editors only see their own tasks.
func CanSee(t domain.Task, v Viewer) bool {
	return v.Role != domain.RoleEditor || t.Assignee == v.Name
}

// VisibleTo applies role visibility to a list.
func VisibleTo(tasks []domain.Task, v Viewer) []domain.Task {
	if v.Role != domain.RoleEditor {
		return tasks
	}
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if CanSee(t, v) {
			out = append(out, t)
		}
	}
	return out
}

type ProjectOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FilterOptions lists the values a UI can offer as filter choices.
type FilterOptions struct {
	Projects  []ProjectOption `json:"projects"`
	Assignees []string        `json:"assignees"`
	Statuses  []string        `json:"statuses"`
}

func OptionsFor(tasks []domain.Task) FilterOptions {
	projects := map[int64]string{}
	assignees := map[string]struct{}{}
	statuses := map[string]struct{}{}
	for _, t := range tasks {
		if t.ProjectID != nil {
			projects[*t.ProjectID] = t.ProjectName
		}
		if t.Assignee != "" {
			assignees[t.Assignee] = struct{}{}
		}
		if t.Status != "" {
			statuses[t.Status] = struct{}{}
		}
	}
	opts := FilterOptions{
		Projects:  make([]ProjectOption, 0, len(projects)),
		Assignees: sortedKeys(assignees),
		Statuses:  sortedKeys(statuses),
	}
	for id, name := range projects {
		opts.Projects = append(opts.Projects, ProjectOption{ID: id, Name: name})
	}
	sort.Slice(opts.Projects, func(i, j int) bool { return opts.Projects[i].ID < opts.Projects[j].ID })
	return opts
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ProjectSummary is one gantt row: a project, its phases and its status timeline.
type ProjectSummary struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	CompanyID    int64           `json:"company_id"`
	CompanyName  string          `json:"company_name,omitempty"`
	Status       string          `json:"status"`
	Assignee     string          `json:"assignee,omitempty"`
	Color        string          `json:"color,omitempty"`
	DueDate      string          `json:"due_date,omitempty"`
	DeliveryDate string          `json:"delivery_date,omitempty"`
	Delivered    bool            `json:"is_delivered"`
	Progress     int             `json:"progress"`
	Start        string          `json:"start,omitempty"`
	End          string          `json:"end,omitempty"`
	Phases       []domain.Task   `json:"phases"`
	Timeline     domain.Timeline `json:"timeline"`
}

// Summarize merges phases and timelines; the row spans the union of both.
func Summarize(projects []domain.Project, companyNames map[int64]string, lists TaskLists, timelines map[int64]domain.Timeline) []ProjectSummary {
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		phases := lists.TasksByProject(p.ID)
		tl := timelines[p.ID]
		s := ProjectSummary{
			ID:           p.ID,
			Name:         p.Name,
			CompanyID:    p.CompanyID,
			CompanyName:  companyNames[p.CompanyID],
			Status:       p.Status,
			Assignee:     p.Assignee,
			Color:        p.Color,
			DueDate:      p.DueDate,
			DeliveryDate: p.DeliveryDate,
			Delivered:    p.Delivered,
			Phases:       phases,
			Timeline:     tl,
		}
		total := 0
		for _, t := range phases {
			total += t.Progress
			s.Start = earlier(s.Start, t.PlanStart)
			s.End = later(s.End, t.PlanEnd)
		}
		if len(phases) > 0 {
			s.Progress = int(math.Round(float64(total) / float64(len(phases))))
		}
		s.Start = earlier(s.Start, tl.Start)
		s.End = later(s.End, tl.End)
		out = append(out, s)
	}
	return out
}

// earlier and later compare YYYY-MM-DD strings, ignoring empty values.
func earlier(a, b string) string {
	if a == "" || (b != "" && b < a) {
		return b
	}
	return a
}

func later(a, b string) string {
	if a == "" || (b != "" && b > a) {
		return b
	}
	return a
}

package gantt

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"reelboard/internal/domain"
)

// TaskPatch lists the fields an update touches. Nil fields are left alone.
type TaskPatch struct {
	Title        *string
	Type         *string
	Status       *string
	Assignee     *string
	Priority     *string
	Progress     *int
	DueDate      *string
	PlanStart    *string
	PlanEnd      *string
	ActualStart  *string
	ActualEnd    *string
	OrderIndex   *int
	Notes        *string
	Dependencies *[]domain.Dependency
	Project      *ProjectRef
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Type == nil && p.Status == nil && p.Assignee == nil &&
		p.Priority == nil && p.Progress == nil && p.DueDate == nil && p.PlanStart == nil &&
		p.PlanEnd == nil && p.ActualStart == nil && p.ActualEnd == nil && p.OrderIndex == nil &&
		p.Notes == nil && p.Dependencies == nil && p.Project == nil
}

// ParsePatch decodes a loosely typed request body. Fields that cannot be
// interpreted are reported and left out of the patch; the rest still apply.
func ParsePatch(raw map[string]json.RawMessage) (TaskPatch, []ValidationError) {
	var (
		p    TaskPatch
		errs []ValidationError
	)
	strField := func(key string) *string {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		s, err := looseString(v)
		if err != nil {
			errs = append(errs, invalid(key, "must be a string"))
			return nil
		}
		return &s
	}
	intField := func(key string) *int {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		n, err := looseInt(v)
		if err != nil {
			errs = append(errs, invalid(key, "must be numeric"))
			return nil
		}
		return &n
	}
	dateField := func(key string) *string {
		s := strField(key)
		if s == nil {
			return nil
		}
		if err := checkDate(key, *s); err != nil {
			errs = append(errs, err.(ValidationError))
			return nil
		}
		return s
	}

	p.Title = strField("title")
	p.Type = strField("type")
	p.Status = strField("status")
	p.Assignee = strField("assignee")
	p.Priority = strField("priority")
	p.Notes = strField("notes")
	p.DueDate = dateField("due_date")
	p.PlanStart = dateField("plan_start")
	p.PlanEnd = dateField("plan_end")
	p.ActualStart = dateField("actual_start")
	p.ActualEnd = dateField("actual_end")
	p.OrderIndex = intField("order_index")
	if progress := intField("progress"); progress != nil {
		if err := checkProgress(*progress); err != nil {
			errs = append(errs, err.(ValidationError))
		} else {
			p.Progress = progress
		}
	}
	if v, ok := raw["dependencies"]; ok {
		deps, err := ParseDependencies(v)
		if err != nil {
			errs = append(errs, invalid("dependencies", "must be a list of task ids or {task_id,type} objects"))
		} else {
			p.Dependencies = &deps
		}
	}
	if v, ok := raw["project_id"]; ok {
		if isNull(v) {
			p.Project = &ProjectRef{}
		} else if s, err := looseString(v); err == nil && strings.TrimSpace(s) == "" {
			p.Project = &ProjectRef{}
		} else if n, err := looseInt(v); err == nil && n >= 0 {
			p.Project = &ProjectRef{ID: int64(n)}
		} else {
			errs = append(errs, invalid("project_id", "must be a project id or null"))
		}
	}
	return p, errs
}

// ParseDependencies accepts [{task_id,type}], [id,...] or "id,id".
func ParseDependencies(v json.RawMessage) ([]domain.Dependency, error) {
	if isNull(v) {
		return []domain.Dependency{}, nil
	}
	var text string
	if err := json.Unmarshal(v, &text); err == nil {
		return DependenciesFromText(text)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, err
	}
	deps := make([]domain.Dependency, 0, len(items))
	for _, item := range items {
		if n, err := looseInt(item); err == nil {
			deps = append(deps, domain.Dependency{TaskID: int64(n), Type: domain.DepFinishToStart})
			continue
		}
		var obj struct {
			TaskID json.RawMessage `json:"task_id"`
			Type   string          `json:"type"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, err
		}
		n, err := looseInt(obj.TaskID)
		if err != nil {
			return nil, err
		}
		deps = append(deps, domain.Dependency{TaskID: int64(n), Type: obj.Type})
	}
	return deps, nil
}

// DependenciesFromText parses a comma separated id list.
func DependenciesFromText(text string) ([]domain.Dependency, error) {
	deps := []domain.Dependency{}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, invalid("dependencies", "%q is not a task id", part)
		}
		deps = append(deps, domain.Dependency{TaskID: id, Type: domain.DepFinishToStart})
	}
	return deps, nil
}

// DependencyText joins predecessor ids with commas.
func DependencyText(deps []domain.Dependency) string {
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = strconv.FormatInt(d.TaskID, 10)
	}
	return strings.Join(parts, ",")
}

// DependencyLabel is DependencyText with each link type, used in history entries.
func DependencyLabel(deps []domain.Dependency) string {
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = strconv.FormatInt(d.TaskID, 10) + ":" + d.Type
	}
	return strings.Join(parts, ",")
}

// normalizeDependencies drops self links and invalid ids, coerces unknown
// types to FS and collapses repeated predecessors keeping the last type.
func normalizeDependencies(taskID int64, deps []domain.Dependency) []domain.Dependency {
	out := make([]domain.Dependency, 0, len(deps))
	seen := make(map[int64]int, len(deps))
	for _, d := range deps {
		if d.TaskID <= 0 || d.TaskID == taskID {
			continue
		}
		typ := strings.ToUpper(strings.TrimSpace(d.Type))
		switch typ {
		case domain.DepFinishToStart, domain.DepStartToStart, domain.DepFinishToFinish, domain.DepStartToFinish:
		default:
			typ = domain.DepFinishToStart
		}
		if idx, ok := seen[d.TaskID]; ok {
			out[idx].Type = typ
			continue
		}
		seen[d.TaskID] = len(out)
		out = append(out, domain.Dependency{TaskID: d.TaskID, Type: typ})
	}
	return out
}

func sameDependencies(a, b []domain.Dependency) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]domain.Dependency{}, a...)
	y := append([]domain.Dependency{}, b...)
	byID := func(deps []domain.Dependency) func(i, j int) bool {
		return func(i, j int) bool { return deps[i].TaskID < deps[j].TaskID }
	}
	sort.Slice(x, byID(x))
	sort.Slice(y, byID(y))
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func looseString(v json.RawMessage) (string, error) {
	if isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func looseInt(v json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

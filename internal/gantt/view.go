package gantt

import "reelboard/internal/domain"

// Gantt views.
const (
	ViewPlan   = "plan"
	ViewActual = "actual"
)

// TaskView is the chart-ready form of a task.
type TaskView struct {
	domain.Task
	Name             string                    `json:"name"`
	Start            string                    `json:"start,omitempty"`
	End              string                    `json:"end,omitempty"`
	DependenciesText string                    `json:"dependencies_text"`
	IsGeneral        bool                      `json:"is_general"`
	History          []domain.TaskHistoryEntry `json:"history,omitempty"`
}

// NormalizeView maps unknown views to the plan view.
func NormalizeView(view string) string {
	if view == ViewActual {
		return ViewActual
	}
	return ViewPlan
}

// SerializeTask renders a task for the chart. The actual view falls back to
// planned dates where nothing was recorded yet.
func SerializeTask(t domain.Task, view string, includeHistory bool) TaskView {
	t = t.Clone()
	v := TaskView{
		Name:             t.Title,
		Start:            t.PlanStart,
		End:              t.PlanEnd,
		DependenciesText: DependencyText(t.Dependencies),
		IsGeneral:        t.ProjectID == nil,
	}
	if NormalizeView(view) == ViewActual {
		v.Start = firstNonEmpty(t.ActualStart, t.PlanStart)
		v.End = firstNonEmpty(t.ActualEnd, t.PlanEnd)
	}
	if includeHistory {
		v.History = t.History
	}
	t.History = nil
	v.Task = t
	return v
}

// SerializeTasks renders a list in order.
func SerializeTasks(tasks []domain.Task, view string, includeHistory bool) []TaskView {
	out := make([]TaskView, len(tasks))
	for i, t := range tasks {
		out[i] = SerializeTask(t, view, includeHistory)
	}
	return out
}

package gantt

import (
	"reelboard/internal/domain"
)

// InitializeProject regenerates the project's stage tasks and merges them into
// its list. Scheduling fields always follow the template; status, progress and
// actual dates of stages the user edited are kept unless the project is finished.
// Running it twice in a row leaves the list unchanged.
func (b *Board) InitializeProject(p *domain.Project, companyName string) error {
	if p.ID <= 0 || p.ID > MaxAutoProjectID {
		return invalid("project_id", "must be within 1..%d", MaxAutoProjectID)
	}
	color := b.Colors.Ensure(p.CompanyID, p)
	b.Timelines.Seed(*p, b.Now())

	stages := b.Template.Build(*p, b.Today())
	list := b.Store.projects[p.ID]
	byStage := make(map[string]*domain.Task, len(stages))
	for _, t := range list {
		if t.IsAuto() && t.AutoStage != "" {
			byStage[t.AutoStage] = t
		}
	}

	ref := ProjectRef{ID: p.ID, Name: p.Name, CompanyName: companyName, Color: color}
	force := p.Finished()
	now := timestamp(b.Now())
	for _, st := range stages {
		t, ok := byStage[st.Key]
		if !ok {
			t = &domain.Task{
				ID:         AutoTaskID(p.ID, st.Index),
				TaskOrigin: domain.OriginAuto,
				AutoStage:  st.Key,
				Priority:   defaultTaskPriority,
				CreatedBy:  systemActor,
				CreatedAt:  now,
				UpdatedBy:  systemActor,
				UpdatedAt:  now,
				History:    []domain.TaskHistoryEntry{},
			}
			list = append(list, t)
		}
		t.Title = st.Title
		t.Type = st.Type
		t.Assignee = p.Assignee
		t.DueDate = st.PlanEnd
		t.PlanStart = st.PlanStart
		t.PlanEnd = st.PlanEnd
		t.OrderIndex = st.Index + 1
		t.Dependencies = autoDependencies(p.ID, st.Index)
		applyProjectRef(t, ref)
		if !t.UserModified || force {
			t.Status = st.Status
			t.Progress = st.Progress
			t.ActualStart = st.ActualStart
			t.ActualEnd = st.ActualEnd
		}
	}
	for _, t := range list {
		if !t.IsAuto() {
			applyProjectRef(t, ref)
		}
	}
	b.Store.setList(Owner{ProjectID: p.ID}, list)
	b.Store.rebuild()
	return nil
}

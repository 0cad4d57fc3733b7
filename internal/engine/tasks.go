package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"reelboard/internal/domain"
	"reelboard/internal/events"
	"reelboard/internal/gantt"
	"reelboard/internal/repo"
)

// projectRef resolves the attributes copied onto tasks of project id.
// A zero id is the general list.
func (e Engine) projectRef(ctx context.Context, tx *sql.Tx, id int64) (*gantt.ProjectRef, error) {
	if id == 0 {
		return &gantt.ProjectRef{}, nil
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ValidationError{Field: "project_id", Reason: fmt.Sprintf("unknown project %d", id)}
	}
	if err != nil {
		return nil, err
	}
	ref := &gantt.ProjectRef{ID: p.ID, Name: p.Name, CompanyName: e.companyName(ctx, tx, p.CompanyID), Color: p.Color}
	if ref.Color == "" {
		ref.Color = e.Board.Colors.Ensure(p.CompanyID, &p)
	}
	return ref, nil
}

type TaskCreateOptions struct {
	gantt.CreateTaskOptions
	ProjectID int64
}

// CreateOptionsFromPatch reads create options from a parsed request body.
func CreateOptionsFromPatch(patch gantt.TaskPatch, actor string) TaskCreateOptions {
	str := func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	}
	opts := TaskCreateOptions{CreateTaskOptions: gantt.CreateTaskOptions{
		Title:       str(patch.Title),
		Type:        str(patch.Type),
		Status:      str(patch.Status),
		Assignee:    str(patch.Assignee),
		Priority:    str(patch.Priority),
		Progress:    patch.Progress,
		DueDate:     str(patch.DueDate),
		PlanStart:   str(patch.PlanStart),
		PlanEnd:     str(patch.PlanEnd),
		ActualStart: str(patch.ActualStart),
		ActualEnd:   str(patch.ActualEnd),
		OrderIndex:  patch.OrderIndex,
		Notes:       str(patch.Notes),
		Actor:       actor,
	}}
	if patch.Dependencies != nil {
		opts.Dependencies = *patch.Dependencies
	}
	if patch.Project != nil {
		opts.ProjectID = patch.Project.ID
	}
	return opts
}

// CreateTask adds a manual task to a project or to the general list.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	var t domain.Task
	err := e.mutate(ctx, func(tx *sql.Tx) error {
		ref, err := e.projectRef(ctx, tx, opts.ProjectID)
		if err != nil {
			return err
		}
		create := opts.CreateTaskOptions
		create.Project = ref
		t, err = e.Board.CreateTask(create)
		if err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       events.TaskCreated,
			ProjectID:  opts.ProjectID,
			EntityKind: events.KindTask,
			EntityID:   events.ID(t.ID),
			Actor:      opts.Actor,
			Payload:    events.EventPayload{"title": t.Title, "status": t.Status},
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	taskMutations.WithLabelValues("create").Inc()
	return t, nil
}

// findVisible looks a task up for v. Tasks hidden from v are reported as
// missing so their existence does not leak.
func (e Engine) findVisible(id int64, v gantt.Viewer) (domain.Task, error) {
	t, _, err := e.Board.FindTask(id)
	if err != nil {
		return domain.Task{}, err
	}
	if !gantt.CanSee(t, v) {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, gantt.ErrNotFound)
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id int64, v gantt.Viewer) (domain.Task, error) {
	var t domain.Task
	err := e.read(func() error {
		var err error
		t, err = e.findVisible(id, v)
		return err
	})
	return t, err
}

// UpdateTask applies a patch. A patch moving the task gets the target
// project's name, company and color filled in.
func (e Engine) UpdateTask(ctx context.Context, id int64, patch gantt.TaskPatch, v gantt.Viewer, actor string) (domain.Task, error) {
	var t domain.Task
	err := e.mutate(ctx, func(tx *sql.Tx) error {
		if _, err := e.findVisible(id, v); err != nil {
			return err
		}
		if patch.Project != nil {
			ref, err := e.projectRef(ctx, tx, patch.Project.ID)
			if err != nil {
				return err
			}
			patch.Project = ref
		}
		var err error
		t, err = e.Board.UpdateTask(id, patch, actor)
		if err != nil {
			return err
		}
		var pid int64
		if t.ProjectID != nil {
			pid = *t.ProjectID
		}
		payload := events.EventPayload{}
		if len(t.History) > 0 {
			payload["latest"] = t.History[0]
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       events.TaskUpdated,
			ProjectID:  pid,
			EntityKind: events.KindTask,
			EntityID:   events.ID(t.ID),
			Actor:      actor,
			Payload:    payload,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	taskMutations.WithLabelValues("update").Inc()
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, id int64, actor string) error {
	err := e.mutate(ctx, func(tx *sql.Tx) error {
		t, owner, err := e.Board.FindTask(id)
		if err != nil {
			return err
		}
		if err := e.Board.DeleteTask(id); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       events.TaskDeleted,
			ProjectID:  owner.ProjectID,
			EntityKind: events.KindTask,
			EntityID:   events.ID(id),
			Actor:      actor,
			Payload:    events.EventPayload{"title": t.Title},
		})
	})
	if err == nil {
		taskMutations.WithLabelValues("delete").Inc()
	}
	return err
}

// ReorderResult reports the tasks whose position changed and ids that were not found.
type ReorderResult struct {
	Updated []domain.Task `json:"updated"`
	Missing []int64       `json:"missing"`
}

// ReorderTasks assigns order_index by position. Ids the viewer cannot see
// are reported as missing and keep their position.
func (e Engine) ReorderTasks(ctx context.Context, ids []int64, v gantt.Viewer, actor string) (ReorderResult, error) {
	if len(ids) == 0 {
		return ReorderResult{}, ValidationError{Field: "ids", Reason: "must list at least one task"}
	}
	var res ReorderResult
	err := e.mutate(ctx, func(tx *sql.Tx) error {
		allowed := make([]int64, 0, len(ids))
		var hidden []int64
		for _, id := range ids {
			if t, _, err := e.Board.FindTask(id); err == nil && !gantt.CanSee(t, v) {
				hidden = append(hidden, id)
				continue
			}
			allowed = append(allowed, id)
		}
		res.Updated, res.Missing = e.Board.ReorderTasks(allowed, actor)
		res.Missing = append(res.Missing, hidden...)
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       events.TasksReordered,
			EntityKind: events.KindTask,
			Actor:      actor,
			Payload:    events.EventPayload{"ids": ids, "updated": len(res.Updated), "missing": res.Missing},
		})
	})
	if err != nil {
		return ReorderResult{}, err
	}
	if res.Updated == nil {
		res.Updated = []domain.Task{}
	}
	if res.Missing == nil {
		res.Missing = []int64{}
	}
	taskMutations.WithLabelValues("reorder").Inc()
	return res, nil
}

func (e Engine) TaskHistory(ctx context.Context, id int64, v gantt.Viewer) ([]domain.TaskHistoryEntry, error) {
	var h []domain.TaskHistoryEntry
	err := e.read(func() error {
		if _, err := e.findVisible(id, v); err != nil {
			return err
		}
		var err error
		h, err = e.Board.TaskHistory(id)
		return err
	})
	return h, err
}

// GanttQuery selects and renders tasks for the chart.
type GanttQuery struct {
	Filters        gantt.Filters
	View           string
	IncludeHistory bool
	Viewer         gantt.Viewer
}

// GanttMeta carries every task the viewer may see, before filtering, so a
// client can look tasks up without another request.
type GanttMeta struct {
	AllTasks []gantt.TaskView    `json:"all_tasks"`
	Total    int                 `json:"total"`
	Filters  gantt.FilterOptions `json:"filters"`
}

type GanttListing struct {
	Data []gantt.TaskView `json:"data"`
	Meta GanttMeta        `json:"meta"`
}

// GanttTasks lists the tasks visible to the viewer after filtering. Projects
// that have never been laid out get their stages first.
func (e Engine) GanttTasks(ctx context.Context, q GanttQuery) (GanttListing, error) {
	if err := e.ensureProjects(ctx); err != nil {
		return GanttListing{}, err
	}
	var visible []domain.Task
	err := e.read(func() error {
		visible = gantt.VisibleTo(e.Board.AllTasks(), q.Viewer)
		return nil
	})
	if err != nil {
		return GanttListing{}, err
	}
	filtered := gantt.FilterTasks(visible, q.Filters)
	return GanttListing{
		Data: gantt.SerializeTasks(filtered, q.View, q.IncludeHistory),
		Meta: GanttMeta{
			AllTasks: gantt.SerializeTasks(visible, q.View, q.IncludeHistory),
			Total:    len(visible),
			Filters:  gantt.OptionsFor(visible),
		},
	}, nil
}

// GanttSummary builds one row per project with phases and status timeline.
// Phases are limited to the tasks v may see.
func (e Engine) GanttSummary(ctx context.Context, f repo.ProjectFilters, v gantt.Viewer) ([]gantt.ProjectSummary, error) {
	if err := e.ensureProjects(ctx); err != nil {
		return nil, err
	}
	projects, err := e.Repo.ListProjects(ctx, f)
	if err != nil {
		return nil, err
	}
	names, err := e.Repo.CompanyNames(ctx)
	if err != nil {
		return nil, err
	}
	var rows []gantt.ProjectSummary
	err = e.read(func() error {
		rows = e.Board.Summaries(projects, names)
		for i := range rows {
			rows[i].Phases = gantt.VisibleTo(rows[i].Phases, v)
		}
		return nil
	})
	return rows, err
}

// ensureProjects lays out stages for projects the board has not seen yet.
func (e Engine) ensureProjects(ctx context.Context) error {
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return err
	}
	var missing []domain.Project
	_ = e.read(func() error {
		for _, p := range projects {
			if !e.Board.HasAutoTasks(p.ID) {
				missing = append(missing, p)
			}
		}
		return nil
	})
	if len(missing) == 0 {
		return nil
	}
	e.Log.Debug("laying out unseen projects", zap.Int("count", len(missing)))
	return e.mutate(ctx, func(tx *sql.Tx) error {
		for i := range missing {
			if err := e.reconcile(ctx, tx, &missing[i], "lazy"); err != nil {
				return err
			}
		}
		return nil
	})
}

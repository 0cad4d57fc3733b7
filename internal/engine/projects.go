package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"reelboard/internal/domain"
	"reelboard/internal/events"
	"reelboard/internal/gantt"
	"reelboard/internal/repo"
)

var projectStatuses = []string{domain.StatusPlanning, domain.StatusInProgress, domain.StatusReview, domain.StatusDone}

func validProjectStatus(s string) bool {
	for _, status := range projectStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ProjectProgress derives the headline progress of a project from its state.
func ProjectProgress(p domain.Project) int {
	switch {
	case p.Finished():
		return 100
	case p.Status == domain.StatusReview:
		return 85
	case p.Status == domain.StatusInProgress:
		return 70
	default:
		return 10
	}
}

func normalizeVideoAxis(v string) string {
	if strings.ToUpper(strings.TrimSpace(v)) == domain.VideoAxisShort {
		return domain.VideoAxisShort
	}
	return domain.VideoAxisLong
}

func checkDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(gantt.DateLayout, v); err != nil {
		return ValidationError{Field: field, Reason: "must be YYYY-MM-DD"}
	}
	return nil
}

type ProjectCreateOptions struct {
	CompanyID        int64
	Name             string
	Status           string
	DueDate          string
	Assignee         string
	VideoAxis        string
	CompletionLength *int
	RawMaterialURL   string
	ScriptURL        string
	FinalVideoURL    string
	Actor            string
}

// CreateProject stores a project and lays out its production stages.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	now := e.timestamp()
	p := domain.Project{
		CompanyID:        opts.CompanyID,
		Name:             strings.TrimSpace(opts.Name),
		Status:           strings.TrimSpace(opts.Status),
		DueDate:          strings.TrimSpace(opts.DueDate),
		Assignee:         strings.TrimSpace(opts.Assignee),
		VideoAxis:        normalizeVideoAxis(opts.VideoAxis),
		CompletionLength: opts.CompletionLength,
		RawMaterialURL:   opts.RawMaterialURL,
		ScriptURL:        opts.ScriptURL,
		FinalVideoURL:    opts.FinalVideoURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.Status == "" {
		p.Status = domain.StatusPlanning
	}
	switch {
	case p.CompanyID <= 0:
		return domain.Project{}, ValidationError{Field: "company_id", Reason: "is required"}
	case p.Name == "":
		return domain.Project{}, ValidationError{Field: "name", Reason: "is required"}
	case p.DueDate == "":
		return domain.Project{}, ValidationError{Field: "due_date", Reason: "is required"}
	case p.Assignee == "":
		return domain.Project{}, ValidationError{Field: "assignee", Reason: "is required"}
	case !validProjectStatus(p.Status):
		return domain.Project{}, ValidationError{Field: "status", Reason: "unknown status " + p.Status}
	}
	if err := checkDate("due_date", p.DueDate); err != nil {
		return domain.Project{}, err
	}
	p.Progress = ProjectProgress(p)

	err := e.mutate(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetCompanyTx(ctx, tx, p.CompanyID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ValidationError{Field: "company_id", Reason: "unknown company"}
			}
			return err
		}
		id, err := e.Repo.InsertProject(ctx, tx, p)
		if err != nil {
			return err
		}
		p.ID = id
		if err := e.reconcile(ctx, tx, &p, "create"); err != nil {
			return err
		}
		if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       events.ProjectCreated,
			ProjectID:  p.ID,
			EntityKind: events.KindProject,
			EntityID:   events.ID(p.ID),
			Actor:      opts.Actor,
			Payload:    events.EventPayload{"name": p.Name, "status": p.Status, "due_date": p.DueDate, "color": p.Color},
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.Log.Info("project created", zap.Int64("project_id", p.ID), zap.String("status", p.Status), zap.String("actor", opts.Actor))
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error) {
	projects, err := e.Repo.ListProjects(ctx, f)
	if projects == nil && err == nil {
		projects = []domain.Project{}
	}
	return projects, err
}

type ProjectUpdateOptions struct {
	ID               int64
	CompanyID        *int64
	Name             *string
	Status           *string
	DueDate          *string
	Assignee         *string
	VideoAxis        *string
	CompletionLength *int
	RawMaterialURL   *string
	ScriptURL        *string
	FinalVideoURL    *string
	Delivered        *bool
	Actor            string
}

// UpdateProject applies changes, records status transitions and regenerates
// the project's stages.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	var p domain.Project
	err := e.mutate(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = e.Repo.GetProjectTx(ctx, tx, opts.ID)
		if err != nil {
			return err
		}
		before := p
		oldStatus, oldDelivered := p.Status, p.Delivered
		changed := events.EventPayload{}
		setStr := func(field string, v *string, dst *string) {
			if v == nil {
				return
			}
			nv := strings.TrimSpace(*v)
			if nv != *dst {
				changed[field] = nv
				*dst = nv
			}
		}
		if opts.CompanyID != nil && *opts.CompanyID != p.CompanyID {
			if _, err := e.Repo.GetCompanyTx(ctx, tx, *opts.CompanyID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ValidationError{Field: "company_id", Reason: "unknown company"}
				}
				return err
			}
			changed["company_id"] = *opts.CompanyID
			p.CompanyID = *opts.CompanyID
		}
		setStr("name", opts.Name, &p.Name)
		setStr("status", opts.Status, &p.Status)
		setStr("due_date", opts.DueDate, &p.DueDate)
		setStr("assignee", opts.Assignee, &p.Assignee)
		setStr("raw_material_url", opts.RawMaterialURL, &p.RawMaterialURL)
		setStr("script_url", opts.ScriptURL, &p.ScriptURL)
		setStr("final_video_url", opts.FinalVideoURL, &p.FinalVideoURL)
		if opts.VideoAxis != nil {
			axis := normalizeVideoAxis(*opts.VideoAxis)
			setStr("video_axis", &axis, &p.VideoAxis)
		}
		if opts.CompletionLength != nil {
			n := *opts.CompletionLength
			p.CompletionLength = &n
			changed["completion_length"] = n
		}
		if p.Name == "" {
			return ValidationError{Field: "name", Reason: "must not be empty"}
		}
		if !validProjectStatus(p.Status) {
			return ValidationError{Field: "status", Reason: "unknown status " + p.Status}
		}
		if err := checkDate("due_date", p.DueDate); err != nil {
			return err
		}
		if opts.Delivered != nil && *opts.Delivered != oldDelivered {
			e.applyDelivery(&p, *opts.Delivered)
			changed["is_delivered"] = p.Delivered
			changed["delivery_date"] = p.DeliveryDate
		}
		p.Progress = ProjectProgress(p)
		p.UpdatedAt = e.timestamp()

		if p.Status != oldStatus {
			e.Board.Timelines.Seed(before, e.now())
			evt := e.Board.RecordStatusChange(p.ID, p.Status, opts.Actor)
			statusChanges.WithLabelValues(p.Status).Inc()
			if err := e.Events.Append(ctx, tx, events.Entry{
				Type:       events.ProjectStatusChanged,
				ProjectID:  p.ID,
				EntityKind: events.KindProject,
				EntityID:   events.ID(p.ID),
				Actor:      opts.Actor,
				Payload:    events.EventPayload{"from": oldStatus, "to": p.Status, "changed_at": evt.ChangedAt},
			}); err != nil {
				return err
			}
		}
		if err := e.reconcile(ctx, tx, &p, "update"); err != nil {
			return err
		}
		if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
			return err
		}
		evtType := events.ProjectUpdated
		if p.Delivered != oldDelivered {
			evtType = events.ProjectUndelivered
			if p.Delivered {
				evtType = events.ProjectDelivered
			}
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       evtType,
			ProjectID:  p.ID,
			EntityKind: events.KindProject,
			EntityID:   events.ID(p.ID),
			Actor:      opts.Actor,
			Payload:    changed,
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ToggleDelivered marks a project delivered today or clears the delivery.
func (e Engine) ToggleDelivered(ctx context.Context, id int64, delivered bool, actor string) (domain.Project, error) {
	return e.UpdateProject(ctx, ProjectUpdateOptions{ID: id, Delivered: &delivered, Actor: actor})
}

// applyDelivery stamps the delivery date with the workspace-local date.
func (e Engine) applyDelivery(p *domain.Project, delivered bool) {
	p.Delivered = delivered
	if delivered {
		p.DeliveryDate = e.today()
		p.Status = domain.StatusDone
		return
	}
	p.DeliveryDate = ""
}

func (e Engine) DeleteProject(ctx context.Context, id int64, actor string) error {
	return e.mutate(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetProjectTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
			return err
		}
		removed := e.Board.RemoveProject(p)
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       events.ProjectDeleted,
			ProjectID:  p.ID,
			EntityKind: events.KindProject,
			EntityID:   events.ID(p.ID),
			Actor:      actor,
			Payload:    events.EventPayload{"name": p.Name, "removed_tasks": len(removed)},
		})
	})
}

// InitializeProjectGantt reruns stage reconciliation for one project.
func (e Engine) InitializeProjectGantt(ctx context.Context, id int64, actor string) ([]domain.Task, error) {
	var tasks []domain.Task
	err := e.mutate(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetProjectTx(ctx, tx, id)
		if err != nil {
			return err
		}
		color := p.Color
		if err := e.reconcile(ctx, tx, &p, "manual"); err != nil {
			return err
		}
		if p.Color != color {
			if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
				return err
			}
		}
		tasks = e.Board.Store.TasksByProject(p.ID)
		return e.Events.Append(ctx, tx, events.Entry{
			Type:       events.GanttReconciled,
			ProjectID:  p.ID,
			EntityKind: events.KindProject,
			EntityID:   events.ID(p.ID),
			Actor:      actor,
			Payload:    events.EventPayload{"tasks": len(tasks)},
		})
	})
	return tasks, err
}

// ReconcileAll regenerates stages for every project, e.g. after startup.
func (e Engine) ReconcileAll(ctx context.Context) (int, error) {
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return 0, err
	}
	err = e.mutate(ctx, func(tx *sql.Tx) error {
		for i := range projects {
			p := projects[i]
			color := p.Color
			if err := e.reconcile(ctx, tx, &p, "startup"); err != nil {
				return err
			}
			if p.Color != color {
				if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.Log.Debug("gantt reconciled", zap.Int("projects", len(projects)))
	return len(projects), nil
}

func (e Engine) reconcile(ctx context.Context, tx *sql.Tx, p *domain.Project, trigger string) error {
	start := time.Now()
	if err := e.Board.InitializeProject(p, e.companyName(ctx, tx, p.CompanyID)); err != nil {
		return err
	}
	reconciliations.WithLabelValues(trigger).Inc()
	reconcileDuration.Observe(time.Since(start).Seconds())
	return nil
}

// ProjectTasks returns a project's tasks, generating stages on first access.
func (e Engine) ProjectTasks(ctx context.Context, id int64) ([]domain.Task, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	var (
		tasks []domain.Task
		ready bool
	)
	_ = e.read(func() error {
		if ready = e.Board.HasAutoTasks(p.ID); ready {
			tasks = e.Board.Store.TasksByProject(p.ID)
		}
		return nil
	})
	if ready {
		return tasks, nil
	}
	err = e.mutate(ctx, func(tx *sql.Tx) error {
		var err error
		tasks, err = e.Board.ProjectTasks(&p, e.companyName(ctx, tx, p.CompanyID))
		return err
	})
	return tasks, err
}

// ProjectTimeline builds the status timeline of a project.
func (e Engine) ProjectTimeline(ctx context.Context, id int64) (domain.Timeline, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Timeline{}, err
	}
	var tl domain.Timeline
	err = e.read(func() error {
		tl = e.Board.Timeline(p)
		return nil
	})
	return tl, err
}

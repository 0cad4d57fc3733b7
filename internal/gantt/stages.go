package gantt

import (
	"fmt"
	"time"

	"reelboard/internal/config"
	"reelboard/internal/domain"
)

const (
	completedProgress = 100
	activeProgress    = 60
)

// MaxAutoProjectID keeps auto task ids below the manual id space.
const MaxAutoProjectID = ManualIDBase/100 - 1

// StageDescriptor is one generated stage, laid out and status-derived.
type StageDescriptor struct {
	Index       int
	Key         string
	Title       string
	Type        string
	Duration    int
	PlanStart   string
	PlanEnd     string
	Status      string
	Progress    int
	ActualStart string
	ActualEnd   string
}

// Template lays out the production stages of a project.
type Template struct {
	stages       []config.StageConfig
	statusStages map[string]string
	defaultStage string
	dueOffset    int
	pastShift    int
}

func NewTemplate(cfg config.GanttConfig) (*Template, error) {
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("stage template is empty")
	}
	if len(cfg.Stages) > config.MaxStages {
		return nil, fmt.Errorf("stage template allows at most %d stages", config.MaxStages)
	}
	t := &Template{
		stages:       append([]config.StageConfig{}, cfg.Stages...),
		statusStages: make(map[string]string, len(cfg.StatusStages)),
		defaultStage: cfg.DefaultStage,
		dueOffset:    cfg.DefaultDueOffsetDays,
		pastShift:    cfg.PastDueShiftDays,
	}
	for status, stage := range cfg.StatusStages {
		t.statusStages[status] = stage
	}
	if t.stageIndex(t.defaultStage) < 0 {
		return nil, fmt.Errorf("default stage %q is not in the template", t.defaultStage)
	}
	return t, nil
}

// Keys returns the stage keys in template order.
func (t *Template) Keys() []string {
	keys := make([]string, len(t.stages))
	for i, st := range t.stages {
		keys[i] = st.Key
	}
	return keys
}

func (t *Template) stageIndex(key string) int {
	for i, st := range t.stages {
		if st.Key == key {
			return i
		}
	}
	return -1
}

// Anchor is the date the last stage ends on.
func (t *Template) Anchor(p domain.Project, today time.Time) time.Time {
	anchor, ok := parseDate(p.DueDate, nil)
	if !ok {
		anchor = addDays(today, t.dueOffset)
	}
	if anchor.Before(today) {
		anchor = addDays(today, t.pastShift)
	}
	return anchor
}

// CurrentStage maps the project status onto a stage index.
func (t *Template) CurrentStage(status string) int {
	if key, ok := t.statusStages[status]; ok {
		if idx := t.stageIndex(key); idx >= 0 {
			return idx
		}
	}
	return t.stageIndex(t.defaultStage)
}

func (t *Template) duration(st config.StageConfig, videoAxis string) int {
	if videoAxis == domain.VideoAxisShort && st.ShortDuration > 0 {
		return st.ShortDuration
	}
	return st.Duration
}

// Build lays the stages out backward from the anchor with no gaps and
// derives each stage's status from the project status.
func (t *Template) Build(p domain.Project, today time.Time) []StageDescriptor {
	out := make([]StageDescriptor, len(t.stages))
	end := t.Anchor(p, today)
	for i := len(t.stages) - 1; i >= 0; i-- {
		st := t.stages[i]
		d := t.duration(st, p.VideoAxis)
		start := addDays(end, -(d - 1))
		out[i] = StageDescriptor{
			Index:     i,
			Key:       st.Key,
			Title:     st.Title,
			Type:      st.Type,
			Duration:  d,
			PlanStart: formatDate(start),
			PlanEnd:   formatDate(end),
		}
		end = addDays(start, -1)
	}

	current := t.CurrentStage(p.Status)
	finished := p.Finished()
	for i := range out {
		s := &out[i]
		switch {
		case finished || i < current:
			s.Status = domain.StatusDone
			s.Progress = completedProgress
			s.ActualStart = s.PlanStart
			s.ActualEnd = s.PlanEnd
		case i == current:
			s.Status = domain.StatusInProgress
			s.Progress = activeProgress
			if st := t.stages[i]; st.ActiveStatus != "" {
				s.Status = st.ActiveStatus
				s.Progress = st.ActiveProgress
			}
			s.ActualStart = s.PlanStart
		default:
			s.Status = domain.TaskStatusPending
			s.Progress = 0
		}
	}
	return out
}

// AutoTaskID derives the stable id of a generated stage task.
func AutoTaskID(projectID int64, index int) int64 {
	return projectID*100 + int64(index) + 1
}

// autoDependencies links a stage to the one before it.
func autoDependencies(projectID int64, index int) []domain.Dependency {
	if index == 0 {
		return []domain.Dependency{}
	}
	return []domain.Dependency{{TaskID: AutoTaskID(projectID, index-1), Type: domain.DepFinishToStart}}
}

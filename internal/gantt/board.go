package gantt

import (
	"encoding/json"
	"fmt"
	"time"

	"reelboard/internal/config"
	"reelboard/internal/domain"
)

// Board owns the gantt state of a workspace: the task store, the status
// timelines and the color registry. Callers serialize mutations.
type Board struct {
	Store     *Store
	Timelines *Timelines
	Colors    *Colors
	Template  *Template
	Location  *time.Location
	Now       func() time.Time
}

func NewBoard(cfg *config.Config, now func() time.Time) (*Board, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if now == nil {
		now = time.Now
	}
	tmpl, err := NewTemplate(cfg.Gantt)
	if err != nil {
		return nil, err
	}
	loc := cfg.Location()
	b := &Board{
		Timelines: NewTimelines(cfg.Timeline.HistoryCap, cfg.Timeline.MaxSpanDays, loc),
		Colors:    NewColors(cfg.Gantt.Palette),
		Template:  tmpl,
		Location:  loc,
		Now:       now,
	}
	b.Store = NewStore(func() time.Time { return b.Now() }, loc)
	return b, nil
}

// Today is the current calendar date in the board's timezone.
func (b *Board) Today() time.Time {
	return civil(b.Now(), b.Location)
}

// ProjectTasks returns the project's tasks, generating its stages on first access.
func (b *Board) ProjectTasks(p *domain.Project, companyName string) ([]domain.Task, error) {
	if !b.HasAutoTasks(p.ID) {
		if err := b.InitializeProject(p, companyName); err != nil {
			return nil, err
		}
	}
	return b.Store.TasksByProject(p.ID), nil
}

// HasAutoTasks reports whether the project's stages have been laid out.
func (b *Board) HasAutoTasks(projectID int64) bool {
	for _, t := range b.Store.projects[projectID] {
		if t.IsAuto() {
			return true
		}
	}
	return false
}

// AllTasks returns every project task plus the general list.
func (b *Board) AllTasks() []domain.Task {
	return b.Store.All()
}

func (b *Board) CreateTask(opts CreateTaskOptions) (domain.Task, error) {
	return b.Store.Create(opts)
}

func (b *Board) FindTask(id int64) (domain.Task, Owner, error) {
	return b.Store.Find(id)
}

func (b *Board) UpdateTask(id int64, patch TaskPatch, actor string) (domain.Task, error) {
	return b.Store.Update(id, patch, actor)
}

func (b *Board) ReorderTasks(ids []int64, actor string) ([]domain.Task, []int64) {
	return b.Store.Reorder(ids, actor)
}

func (b *Board) DeleteTask(id int64) error {
	return b.Store.Delete(id)
}

// TaskHistory returns the change log of a task, most recent first.
func (b *Board) TaskHistory(id int64) ([]domain.TaskHistoryEntry, error) {
	t, _, err := b.Store.Find(id)
	if err != nil {
		return nil, err
	}
	return t.History, nil
}

// RecordStatusChange appends a status event for the project.
func (b *Board) RecordStatusChange(projectID int64, status, actor string) domain.StatusEvent {
	return b.Timelines.Record(projectID, status, actor, b.Now())
}

// Timeline builds the project's status timeline. A project without history
// is shown as if it had been seeded; the board itself is left unchanged.
func (b *Board) Timeline(p domain.Project) domain.Timeline {
	return b.Timelines.Preview(p, b.Now(), b.Today())
}

// RemoveProject drops every trace of a deleted project.
func (b *Board) RemoveProject(p domain.Project) []int64 {
	b.Timelines.Drop(p.ID)
	b.Colors.Forget(p.CompanyID, p.ID)
	return b.Store.DropProject(p.ID)
}

// Summaries builds one gantt row per project.
func (b *Board) Summaries(projects []domain.Project, companyNames map[int64]string) []ProjectSummary {
	timelines := make(map[int64]domain.Timeline, len(projects))
	for _, p := range projects {
		timelines[p.ID] = b.Timeline(p)
	}
	return Summarize(projects, companyNames, b.Store, timelines)
}

// Snapshot is the persisted form of a Board.
type Snapshot struct {
	Version   int           `json:"version"`
	Tasks     StoreState    `json:"tasks"`
	Timelines TimelineState `json:"timelines"`
	SavedAt   string        `json:"saved_at"`
}

const snapshotVersion = 1

func (b *Board) Snapshot() ([]byte, error) {
	return json.Marshal(Snapshot{
		Version:   snapshotVersion,
		Tasks:     b.Store.State(),
		Timelines: b.Timelines.State(),
		SavedAt:   timestamp(b.Now()),
	})
}

// Reset empties the board.
func (b *Board) Reset() {
	b.Store.Load(StoreState{})
	b.Timelines.Load(nil)
}

func (b *Board) Restore(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode gantt snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported gantt snapshot version %d", snap.Version)
	}
	b.Store.Load(snap.Tasks)
	b.Timelines.Load(snap.Timelines)
	return nil
}

package gantt_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelboard/internal/config"
	"reelboard/internal/domain"
	"reelboard/internal/gantt"
)

func newBoard(t *testing.T, now time.Time) *gantt.Board {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.Timezone = "UTC"
	b, err := gantt.NewBoard(cfg, func() time.Time { return now })
	require.NoError(t, err)
	return b
}

func sampleProject() *domain.Project {
	return &domain.Project{
		ID:        7,
		CompanyID: 1,
		Name:      "Spring campaign",
		Status:    domain.StatusInProgress,
		DueDate:   "2025-04-10",
		Assignee:  "editor",
		VideoAxis: domain.VideoAxisLong,
		CreatedAt: "2025-03-01T00:00:00Z",
	}
}

func TestInitializeProjectCreatesStages(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	require.NoError(t, b.InitializeProject(p, "Acme"))
	assert.NotEmpty(t, p.Color)

	tasks := b.Store.TasksByProject(p.ID)
	require.Len(t, tasks, 5)
	for i, task := range tasks {
		assert.Equal(t, gantt.AutoTaskID(p.ID, i), task.ID)
		assert.Equal(t, i+1, task.OrderIndex)
		assert.Equal(t, domain.OriginAuto, task.TaskOrigin)
		assert.Equal(t, "Acme", task.CompanyName)
		assert.Equal(t, p.Color, task.Color)
		assert.Equal(t, "editor", task.Assignee)
		if i == 0 {
			assert.Empty(t, task.Dependencies)
			continue
		}
		assert.Equal(t, []domain.Dependency{{TaskID: tasks[i-1].ID, Type: domain.DepFinishToStart}}, task.Dependencies)
	}
}

func TestInitializeProjectIsIdempotent(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	require.NoError(t, b.InitializeProject(p, "Acme"))
	first, err := json.Marshal(b.Store.TasksByProject(p.ID))
	require.NoError(t, err)

	require.NoError(t, b.InitializeProject(p, "Acme"))
	second, err := json.Marshal(b.Store.TasksByProject(p.ID))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestReconcilePreservesUserEdits(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	require.NoError(t, b.InitializeProject(p, "Acme"))

	editID := gantt.AutoTaskID(p.ID, 2)
	_, err := b.UpdateTask(editID, gantt.TaskPatch{Progress: ptr(30), PlanStart: ptr("2025-01-01")}, "editor")
	require.NoError(t, err)

	p.DueDate = "2025-04-20"
	require.NoError(t, b.InitializeProject(p, "Acme"))
	edit, _, err := b.FindTask(editID)
	require.NoError(t, err)
	assert.True(t, edit.UserModified)
	assert.Equal(t, 30, edit.Progress, "progress kept")
	assert.Equal(t, "2025-04-12", edit.PlanStart, "schedule refreshed")
	assert.Equal(t, "2025-04-16", edit.PlanEnd)
}

func TestDeliveredForcesCompletion(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	require.NoError(t, b.InitializeProject(p, "Acme"))
	_, err := b.UpdateTask(gantt.AutoTaskID(p.ID, 3), gantt.TaskPatch{Status: ptr(domain.StatusReview), Progress: ptr(10)}, "editor")
	require.NoError(t, err)

	p.Delivered = true
	p.DeliveryDate = "2025-03-20"
	require.NoError(t, b.InitializeProject(p, "Acme"))
	for _, task := range b.Store.TasksByProject(p.ID) {
		assert.Equal(t, domain.StatusDone, task.Status, task.AutoStage)
		assert.Equal(t, 100, task.Progress, task.AutoStage)
	}
}

func TestReconcileRenamesManualTasks(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	require.NoError(t, b.InitializeProject(p, "Acme"))
	manual, err := b.CreateTask(gantt.CreateTaskOptions{Title: "BGM", Project: &gantt.ProjectRef{ID: p.ID, Name: p.Name}})
	require.NoError(t, err)
	assert.Equal(t, 6, manual.OrderIndex)

	p.Name = "Summer campaign"
	require.NoError(t, b.InitializeProject(p, "Acme"))
	got, _, err := b.FindTask(manual.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summer campaign", got.ProjectName)
	assert.Len(t, b.Store.TasksByProject(p.ID), 6)
}

func TestAutoTasksCannotMoveOrBeDeleted(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	require.NoError(t, b.InitializeProject(p, "Acme"))
	id := gantt.AutoTaskID(p.ID, 0)
	var verr gantt.ValidationError
	assert.ErrorAs(t, b.DeleteTask(id), &verr)
	_, err := b.UpdateTask(id, gantt.TaskPatch{Project: &gantt.ProjectRef{}}, "u")
	assert.ErrorAs(t, err, &verr)
}

func TestInitializeProjectRejectsOutOfRangeID(t *testing.T) {
	b := newBoard(t, fixedToday)
	err := b.InitializeProject(&domain.Project{ID: 0}, "")
	var verr gantt.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestProjectTasksInitializesLazily(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	tasks, err := b.ProjectTasks(p, "Acme")
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
	assert.Len(t, b.AllTasks(), 5)
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := newBoard(t, fixedToday)
	p := sampleProject()
	require.NoError(t, b.InitializeProject(p, "Acme"))
	manual, err := b.CreateTask(gantt.CreateTaskOptions{Title: "loose"})
	require.NoError(t, err)
	b.RecordStatusChange(p.ID, domain.StatusReview, "editor")

	data, err := b.Snapshot()
	require.NoError(t, err)

	restored := newBoard(t, fixedToday)
	require.NoError(t, restored.Restore(data))
	assert.Len(t, restored.AllTasks(), 6)
	assert.Len(t, restored.Timelines.History(p.ID), 2)

	next, err := restored.CreateTask(gantt.CreateTaskOptions{Title: "after"})
	require.NoError(t, err)
	assert.Greater(t, next.ID, manual.ID)
}

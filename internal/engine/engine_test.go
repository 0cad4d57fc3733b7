package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelboard/internal/config"
	"reelboard/internal/db"
	"reelboard/internal/domain"
	"reelboard/internal/engine"
	"reelboard/internal/engine/auth"
	"reelboard/internal/gantt"
	"reelboard/internal/migrate"
	"reelboard/internal/repo"
)

var (
	testNow = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	admin   = gantt.Viewer{Name: "管理者", Role: domain.RoleAdmin}
	editor  = gantt.Viewer{Name: "editor", Role: domain.RoleEditor}
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Company domain.Company
	dir     string
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workspace.Timezone = "UTC"
	return cfg
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{Ctx: context.Background(), dir: dir}
	env.Engine = openEngine(t, dir)
	c, err := env.Engine.CreateCompany(env.Ctx, engine.CompanyCreateOptions{Name: "Acme", Code: "acm", Actor: "tester"})
	require.NoError(t, err)
	env.Company = c
	return env
}

func openEngine(t *testing.T, dir string) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	eng, err := engine.New(conn, testConfig(), engine.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	require.NoError(t, eng.LoadBoard(context.Background()))
	return eng
}

func (env testEnv) project(t *testing.T, name string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		CompanyID: env.Company.ID,
		Name:      name,
		Status:    domain.StatusInProgress,
		DueDate:   "2025-04-10",
		Assignee:  "editor",
		Actor:     "tester",
	})
	require.NoError(t, err)
	return p
}

func TestCreateCompanyRejectsDuplicateCode(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, "ACM", env.Company.Code)
	_, err := env.Engine.CreateCompany(env.Ctx, engine.CompanyCreateOptions{Name: "Other", Code: "ACM"})
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestCreateProjectLaysOutStages(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Spring campaign")
	assert.Equal(t, 70, p.Progress)
	assert.Equal(t, domain.VideoAxisLong, p.VideoAxis)
	assert.NotEmpty(t, p.Color)

	stored, err := env.Engine.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Color, stored.Color)

	tasks, err := env.Engine.ProjectTasks(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 5)
	assert.Equal(t, "2025-04-10", tasks[4].PlanEnd)
	assert.Equal(t, gantt.AutoTaskID(p.ID, 0), tasks[0].ID)
	for _, task := range tasks {
		assert.Equal(t, "Acme", task.CompanyName)
		assert.Equal(t, p.Color, task.Color)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]engine.ProjectCreateOptions{
		"assignee":   {CompanyID: env.Company.ID, Name: "x", DueDate: "2025-04-10"},
		"due_date":   {CompanyID: env.Company.ID, Name: "x", Assignee: "a"},
		"company_id": {CompanyID: 999, Name: "x", DueDate: "2025-04-10", Assignee: "a"},
		"status":     {CompanyID: env.Company.ID, Name: "x", DueDate: "2025-04-10", Assignee: "a", Status: "done"},
	}
	for field, opts := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := env.Engine.CreateProject(env.Ctx, opts)
			var verr engine.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, field, verr.Field)
		})
	}
	projects, err := env.Engine.ListProjects(env.Ctx, repo.ProjectFilters{})
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestToggleDelivered(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Launch")

	p, err := env.Engine.ToggleDelivered(env.Ctx, p.ID, true, "tester")
	require.NoError(t, err)
	assert.True(t, p.Delivered)
	assert.Equal(t, "2025-03-20", p.DeliveryDate)
	assert.Equal(t, domain.StatusDone, p.Status)
	assert.Equal(t, 100, p.Progress)

	tasks, err := env.Engine.ProjectTasks(env.Ctx, p.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, domain.StatusDone, task.Status)
		assert.Equal(t, 100, task.Progress)
	}

	p, err = env.Engine.ToggleDelivered(env.Ctx, p.ID, false, "tester")
	require.NoError(t, err)
	assert.False(t, p.Delivered)
	assert.Empty(t, p.DeliveryDate)
	assert.Equal(t, domain.StatusDone, p.Status)
}

func TestStatusChangeFeedsTimeline(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Teaser")
	review := domain.StatusReview
	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Status: &review, Actor: "tester"})
	require.NoError(t, err)

	tl, err := env.Engine.ProjectTimeline(env.Ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, tl.History)
	assert.Equal(t, domain.StatusReview, tl.History[len(tl.History)-1].Status)
	assert.Equal(t, "2025-03-20", tl.Start)

	tasks, err := env.Engine.ProjectTasks(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReview, tasks[3].Status)
}

func TestRenamePropagatesToTasks(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Old name")
	manual, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:         p.ID,
		CreateTaskOptions: gantt.CreateTaskOptions{Title: "Thumbnail", Actor: "tester"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Old name", manual.ProjectName)

	name := "New name"
	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Name: &name, Actor: "tester"})
	require.NoError(t, err)

	tasks, err := env.Engine.ProjectTasks(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 6)
	for _, task := range tasks {
		assert.Equal(t, "New name", task.ProjectName)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Docs")

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		CreateTaskOptions: gantt.CreateTaskOptions{Title: "Buy props", DueDate: "2025-03-25", Actor: "tester"},
	})
	require.NoError(t, err)
	assert.Nil(t, task.ProjectID)
	assert.Equal(t, "2025-03-22", task.PlanStart)

	task, err = env.Engine.UpdateTask(env.Ctx, task.ID, gantt.TaskPatch{Project: &gantt.ProjectRef{ID: p.ID}}, admin, "tester")
	require.NoError(t, err)
	require.NotNil(t, task.ProjectID)
	assert.Equal(t, p.ID, *task.ProjectID)
	assert.Equal(t, "Docs", task.ProjectName)
	assert.Equal(t, "Acme", task.CompanyName)

	history, err := env.Engine.TaskHistory(env.Ctx, task.ID, admin)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "tester", history[0].Actor)

	err = env.Engine.DeleteTask(env.Ctx, gantt.AutoTaskID(p.ID, 0), "tester")
	var verr engine.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, task.ID, "tester"))
	_, err = env.Engine.GetTask(env.Ctx, task.ID, admin)
	assert.ErrorIs(t, err, gantt.ErrNotFound)
}

func TestFailedWriteLeavesBoardUntouched(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		CreateTaskOptions: gantt.CreateTaskOptions{Title: "General", Actor: "tester"},
	})
	require.NoError(t, err)

	_, err = env.Engine.UpdateTask(env.Ctx, task.ID, gantt.TaskPatch{Project: &gantt.ProjectRef{ID: 4242}}, admin, "tester")
	var verr engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "project_id", verr.Field)

	got, err := env.Engine.GetTask(env.Ctx, task.ID, admin)
	require.NoError(t, err)
	assert.Nil(t, got.ProjectID)
	assert.Empty(t, got.History)
}

func TestBoardSurvivesRestart(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Persisted")
	title := "Edit pass (custom)"
	editID := gantt.AutoTaskID(p.ID, 2)
	_, err := env.Engine.UpdateTask(env.Ctx, editID, gantt.TaskPatch{Title: &title}, admin, "tester")
	require.NoError(t, err)

	reopened := openEngine(t, env.dir)
	got, err := reopened.GetTask(env.Ctx, editID, admin)
	require.NoError(t, err)
	assert.True(t, got.UserModified)
	require.NotEmpty(t, got.History)
	assert.Equal(t, "title", got.History[0].Field)

	n, err := reopened.ReconcileAll(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = reopened.GetTask(env.Ctx, editID, admin)
	require.NoError(t, err)
	assert.Equal(t, "編集", got.Title)
	assert.True(t, got.UserModified)
}

func TestReorderTasks(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CreateTaskOptions: gantt.CreateTaskOptions{Title: "a"}})
	require.NoError(t, err)
	b, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{CreateTaskOptions: gantt.CreateTaskOptions{Title: "b"}})
	require.NoError(t, err)

	res, err := env.Engine.ReorderTasks(env.Ctx, []int64{b.ID, a.ID, 77}, admin, "tester")
	require.NoError(t, err)
	assert.Equal(t, []int64{77}, res.Missing)
	assert.Len(t, res.Updated, 2)

	_, err = env.Engine.ReorderTasks(env.Ctx, nil, admin, "tester")
	assert.Error(t, err)
}

func TestGanttTasksFiltersAndVisibility(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Filtered")
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		CreateTaskOptions: gantt.CreateTaskOptions{Title: "Someone else", Assignee: "other"},
	})
	require.NoError(t, err)

	all, err := env.Engine.GanttTasks(env.Ctx, engine.GanttQuery{Viewer: admin})
	require.NoError(t, err)
	assert.Len(t, all.Meta.AllTasks, 6)
	assert.Equal(t, 6, all.Meta.Total)
	assert.ElementsMatch(t, []string{"editor", "other"}, all.Meta.Filters.Assignees)

	own, err := env.Engine.GanttTasks(env.Ctx, engine.GanttQuery{Viewer: gantt.Viewer{Name: "editor", Role: domain.RoleEditor}})
	require.NoError(t, err)
	assert.Len(t, own.Meta.AllTasks, 5)
	for _, v := range own.Meta.AllTasks {
		assert.Equal(t, "editor", v.Assignee)
	}

	general := int64(0)
	onlyGeneral, err := env.Engine.GanttTasks(env.Ctx, engine.GanttQuery{
		Filters: gantt.Filters{ProjectID: &general},
		Viewer:  gantt.Viewer{Role: domain.RoleAdmin},
	})
	require.NoError(t, err)
	require.Len(t, onlyGeneral.Data, 1)
	assert.True(t, onlyGeneral.Data[0].IsGeneral)

	rows, err := env.Engine.GanttSummary(env.Ctx, repo.ProjectFilters{}, admin)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, p.ID, rows[0].ID)
	assert.Len(t, rows[0].Phases, 5)
	assert.Equal(t, "Acme", rows[0].CompanyName)
}

func TestAuthenticateAndAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	n, err := env.Engine.EnsureDefaultUsers(env.Ctx, engine.DefaultUsers)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = env.Engine.EnsureDefaultUsers(env.Ctx, engine.DefaultUsers)
	require.NoError(t, err)
	assert.Zero(t, n)

	u, err := env.Engine.Authenticate(env.Ctx, "ADMIN@example.com", "adminpass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	_, err = env.Engine.Authenticate(env.Ctx, "admin@example.com", "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	key, err := env.Engine.CreateAPIKey(env.Ctx, u.ID, "ci", "tester")
	require.NoError(t, err)
	assert.NotEmpty(t, key.Key)
	owner, err := env.Engine.ResolveAPIKey(env.Ctx, key.Key)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner.ID)
	_, err = env.Engine.ResolveAPIKey(env.Ctx, "rb_unknown")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "One")
	env.project(t, "Two")
	_, err := env.Engine.ToggleDelivered(env.Ctx, p.ID, true, "tester")
	require.NoError(t, err)

	stats, err := env.Engine.DashboardStats(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalProjects)
	assert.Equal(t, 1, stats.ActiveProjects)
	assert.Equal(t, 1, stats.CompletedProjects)
	assert.Equal(t, 1, stats.TotalCompanies)
	assert.Equal(t, 10, stats.TotalTasks)
	assert.Equal(t, 7, stats.TasksByStatus[domain.StatusDone])
}

func TestDeleteProjectDropsTasks(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Gone")
	require.NoError(t, env.Engine.DeleteProject(env.Ctx, p.ID, "tester"))
	_, err := env.Engine.GetProject(env.Ctx, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.GetTask(env.Ctx, gantt.AutoTaskID(p.ID, 0), admin)
	assert.ErrorIs(t, err, gantt.ErrNotFound)
}

func TestEditorsOnlyReachTheirOwnTasks(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Shared")
	other, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		CreateTaskOptions: gantt.CreateTaskOptions{Title: "Other's", Assignee: "other", Actor: "tester"},
	})
	require.NoError(t, err)

	_, err = env.Engine.GetTask(env.Ctx, other.ID, editor)
	assert.ErrorIs(t, err, gantt.ErrNotFound)
	_, err = env.Engine.TaskHistory(env.Ctx, other.ID, editor)
	assert.ErrorIs(t, err, gantt.ErrNotFound)
	title := "Mine now"
	_, err = env.Engine.UpdateTask(env.Ctx, other.ID, gantt.TaskPatch{Title: &title}, editor, "editor")
	assert.ErrorIs(t, err, gantt.ErrNotFound)

	got, err := env.Engine.GetTask(env.Ctx, other.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, "Other's", got.Title)
	assert.Empty(t, got.History)

	own := gantt.AutoTaskID(p.ID, 0)
	_, err = env.Engine.UpdateTask(env.Ctx, own, gantt.TaskPatch{Title: &title}, editor, "editor")
	require.NoError(t, err)

	res, err := env.Engine.ReorderTasks(env.Ctx, []int64{other.ID, own}, editor, "editor")
	require.NoError(t, err)
	assert.Equal(t, []int64{other.ID}, res.Missing)

	rows, err := env.Engine.GanttSummary(env.Ctx, repo.ProjectFilters{}, gantt.Viewer{Name: "nobody", Role: domain.RoleEditor})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Phases)
}

func TestStatusChangeKeepsPreviousStatusWithoutHistory(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Snapshot lost")
	env.Engine.Board.Timelines.Drop(p.ID)

	review := domain.StatusReview
	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Status: &review, Actor: "tester"})
	require.NoError(t, err)

	history := env.Engine.Board.Timelines.History(p.ID)
	require.Len(t, history, 2)
	assert.Equal(t, domain.StatusInProgress, history[0].Status)
	assert.Equal(t, domain.StatusReview, history[1].Status)
	assert.Equal(t, "tester", history[1].ChangedBy)
}

func TestTimelineReadDoesNotSeed(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Read only")
	env.Engine.Board.Timelines.Drop(p.ID)

	tl, err := env.Engine.ProjectTimeline(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tl.History, 1)
	assert.Equal(t, domain.StatusInProgress, tl.History[0].Status)
	assert.Empty(t, env.Engine.Board.Timelines.History(p.ID))

	_, err = env.Engine.GanttSummary(env.Ctx, repo.ProjectFilters{}, admin)
	require.NoError(t, err)
	assert.Empty(t, env.Engine.Board.Timelines.History(p.ID))
}

func TestManualOnlyProjectGetsLaidOut(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t, "Manual first")
	require.Len(t, env.Engine.Board.Store.DropProject(p.ID), 5)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:         p.ID,
		CreateTaskOptions: gantt.CreateTaskOptions{Title: "Storyboard", Assignee: "editor", Actor: "tester"},
	})
	require.NoError(t, err)
	require.False(t, env.Engine.Board.HasAutoTasks(p.ID))

	listing, err := env.Engine.GanttTasks(env.Ctx, engine.GanttQuery{Viewer: admin})
	require.NoError(t, err)
	assert.Len(t, listing.Data, 6)
	assert.True(t, env.Engine.Board.HasAutoTasks(p.ID))
}

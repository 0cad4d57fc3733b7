package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelboard/internal/config"
	"reelboard/internal/db"
	"reelboard/internal/domain"
	"reelboard/internal/engine"
	"reelboard/internal/gantt"
	"reelboard/internal/migrate"
)

var testNow = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	Engine engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Workspace.Timezone = "UTC"
	e, err := engine.New(conn, cfg, engine.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	require.NoError(t, e.LoadBoard(context.Background()))
	_, err = e.EnsureDefaultUsers(context.Background(), engine.DefaultUsers)
	require.NoError(t, err)
	handler, err := New(Config{Engine: e, Auth: AuthConfig{JWTSecret: "test-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, Engine: e}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func (s *testServer) login(t *testing.T, email, password string) map[string]string {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out LoginResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotEmpty(t, out.Token)
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, _ := srv.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := srv.do(t, http.MethodGet, "/api/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, string(data), `"code":"unauthorized"`)

	res, _ = srv.do(t, http.MethodGet, "/api/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = srv.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestProjectGanttFlow(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin@example.com", "adminpass")

	res, data := srv.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Acme", "code": "acm"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	company := decode[domain.Company](t, data)

	res, data = srv.do(t, http.MethodPost, "/api/projects", map[string]any{
		"company_id": company.ID,
		"name":       "Spring campaign",
		"status":     domain.StatusInProgress,
		"due_date":   "2025-04-10",
		"assignee":   "編集者",
	}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	project := decode[domain.Project](t, data)
	pid := strconv.FormatInt(project.ID, 10)

	res, data = srv.do(t, http.MethodGet, "/api/gantt/tasks?project_id="+pid, nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	listing := decode[engine.GanttListing](t, data)
	require.Len(t, listing.Data, 5)
	assert.Len(t, listing.Meta.AllTasks, 5)
	assert.Equal(t, 5, listing.Meta.Total)
	assert.Equal(t, "2025-04-10", listing.Data[4].End)
	editID := strconv.FormatInt(listing.Data[2].ID, 10)

	res, data = srv.do(t, http.MethodPut, "/api/tasks/"+editID, map[string]any{"progress": "55", "due_date": "not-a-date"}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	updated := decode[TaskResponse](t, data)
	assert.Equal(t, 55, updated.Data.Progress)
	assert.True(t, updated.Data.UserModified)
	require.Len(t, updated.Warnings, 1)
	assert.Equal(t, "due_date", updated.Warnings[0].Field)

	res, data = srv.do(t, http.MethodGet, "/api/gantt/tasks/"+editID+"/history", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	history := decode[[]domain.TaskHistoryEntry](t, data)
	require.Len(t, history, 1)
	assert.Equal(t, "progress", history[0].Field)
	assert.Equal(t, "管理者", history[0].Actor)

	res, data = srv.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title":        "Thumbnail",
		"project_id":   project.ID,
		"dependencies": "101,102",
	}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	manual := decode[TaskResponse](t, data)
	assert.Equal(t, "101,102", manual.Data.DependenciesText)
	assert.Equal(t, "Spring campaign", manual.Data.ProjectName)

	res, data = srv.do(t, http.MethodDelete, "/api/tasks/"+editID, nil, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/api/projects/"+pid+"/toggle-delivered", map[string]bool{"delivered": true}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	delivered := decode[domain.Project](t, data)
	assert.Equal(t, "2025-03-20", delivered.DeliveryDate)
	assert.Equal(t, domain.StatusDone, delivered.Status)

	res, data = srv.do(t, http.MethodGet, "/api/projects/"+pid+"/timeline", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	tl := decode[domain.Timeline](t, data)
	require.NotEmpty(t, tl.Segments)
	assert.Equal(t, domain.StatusDone, tl.Segments[len(tl.Segments)-1].Status)

	res, data = srv.do(t, http.MethodGet, "/api/gantt/summary", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), `"phases"`)

	res, data = srv.do(t, http.MethodGet, "/api/dashboard/stats", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	stats := decode[domain.DashboardStats](t, data)
	assert.Equal(t, 1, stats.CompletedProjects)
	assert.Equal(t, 6, stats.TotalTasks)

	res, data = srv.do(t, http.MethodGet, "/api/events?limit=2", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[paginatedEvents](t, data)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)
}

func TestEditorPermissionsAndVisibility(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin@example.com", "adminpass")
	editor := srv.login(t, "editor@example.com", "editorpass")

	res, _ := srv.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Nope", "code": "NO"}, editor)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data := srv.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "Mine", "assignee": "編集者"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	mine := decode[TaskResponse](t, data).Data
	res, data = srv.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "Theirs", "assignee": "someone"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	theirs := decode[TaskResponse](t, data).Data

	res, data = srv.do(t, http.MethodGet, "/api/gantt/tasks?project_id=general", nil, editor)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	listing := decode[engine.GanttListing](t, data)
	require.Len(t, listing.Data, 1)
	assert.Equal(t, "Mine", listing.Data[0].Title)
	require.Len(t, listing.Meta.AllTasks, 1)
	assert.Equal(t, mine.ID, listing.Meta.AllTasks[0].ID)
	assert.Equal(t, 1, listing.Meta.Total)

	var raw struct {
		Meta struct {
			AllTasks []map[string]any `json:"all_tasks"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Meta.AllTasks, 1)
	assert.Equal(t, "Mine", raw.Meta.AllTasks[0]["title"])

	theirsPath := "/api/tasks/" + strconv.FormatInt(theirs.ID, 10)
	res, _ = srv.do(t, http.MethodGet, theirsPath, nil, editor)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = srv.do(t, http.MethodGet, "/api/gantt/tasks/"+strconv.FormatInt(theirs.ID, 10)+"/history", nil, editor)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = srv.do(t, http.MethodPut, theirsPath, map[string]any{"title": "Taken"}, editor)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, data = srv.do(t, http.MethodGet, theirsPath, nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "Theirs", decode[TaskResponse](t, data).Data.Title)

	res, data = srv.do(t, http.MethodPost, "/api/gantt/tasks/reorder", map[string]any{"ids": []int64{theirs.ID, mine.ID}}, editor)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	reordered := decode[engine.ReorderResult](t, data)
	assert.Equal(t, []int64{theirs.ID}, reordered.Missing)
	for _, u := range reordered.Updated {
		assert.NotEqual(t, theirs.ID, u.ID)
	}
	res, data = srv.do(t, http.MethodGet, theirsPath, nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, theirs.OrderIndex, decode[TaskResponse](t, data).Data.OrderIndex)

	minePath := "/api/tasks/" + strconv.FormatInt(mine.ID, 10)
	res, data = srv.do(t, http.MethodPut, minePath, map[string]any{"progress": 30}, editor)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 30, decode[TaskResponse](t, data).Data.Progress)
	res, data = srv.do(t, http.MethodGet, "/api/gantt/tasks/"+strconv.FormatInt(mine.ID, 10)+"/history", nil, editor)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.NotEmpty(t, decode[[]domain.TaskHistoryEntry](t, data))

	res, data = srv.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Acme", "code": "ACM"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	company := decode[domain.Company](t, data)
	res, data = srv.do(t, http.MethodPost, "/api/projects", map[string]any{
		"company_id": company.ID, "name": "Someone's film", "status": domain.StatusInProgress,
		"due_date": "2025-04-10", "assignee": "someone",
	}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodGet, "/api/gantt/summary", nil, editor)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rows := decode[[]gantt.ProjectSummary](t, data)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Phases)
	res, data = srv.do(t, http.MethodGet, "/api/gantt/summary", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rows = decode[[]gantt.ProjectSummary](t, data)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Phases, 5)

	res, data = srv.do(t, http.MethodGet, "/api/gantt/tasks?start_date=2025-13-01", nil, editor)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin@example.com", "adminpass")
	res, data := srv.do(t, http.MethodPost, "/api/api-keys", map[string]any{"name": "ci"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	key := decode[engine.CreatedAPIKey](t, data)

	for i := 0; i < 2; i++ {
		res, data = srv.do(t, http.MethodGet, "/api/me", nil, map[string]string{"X-Api-Key": key.Key})
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		assert.Contains(t, string(data), `"source":"api_key"`)
	}

	res, _ = srv.do(t, http.MethodGet, "/api/me", nil, map[string]string{"X-Api-Key": "rb_wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = srv.do(t, http.MethodGet, "/api/api-keys", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), key.ID)

	res, _ = srv.do(t, http.MethodDelete, "/api/api-keys/"+key.ID, nil, admin)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = srv.do(t, http.MethodGet, "/api/me", nil, map[string]string{"X-Api-Key": key.Key})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	res, _ = srv.do(t, http.MethodDelete, "/api/api-keys/"+key.ID, nil, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

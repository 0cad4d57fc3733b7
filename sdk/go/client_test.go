package reelboardsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelboard/internal/config"
	"reelboard/internal/db"
	"reelboard/internal/engine"
	"reelboard/internal/migrate"
	"reelboard/internal/server"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Workspace.Timezone = "UTC"
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	e, err := engine.New(conn, cfg, engine.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	require.NoError(t, e.LoadBoard(ctx))
	_, err = e.EnsureDefaultUsers(ctx, engine.DefaultUsers)
	require.NoError(t, err)
	h, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := New(srv.URL + "/api")

	_, err := c.ListCompanies(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = c.Login(ctx, "admin@example.com", "adminpass")
	require.NoError(t, err)

	company, err := c.CreateCompany(ctx, "Acme", "acm")
	require.NoError(t, err)
	assert.Equal(t, "ACM", company.Code)

	project, err := c.CreateProject(ctx, NewProject{
		CompanyID: company.ID,
		Name:      "Launch film",
		Status:    "進行中",
		DueDate:   "2025-04-10",
		Assignee:  "編集者",
	})
	require.NoError(t, err)
	assert.Equal(t, 70, project.Progress)

	listing, err := c.GanttTasks(ctx, TaskQuery{ProjectID: "general"})
	require.NoError(t, err)
	assert.Empty(t, listing.Data)
	assert.Len(t, listing.Meta.AllTasks, 5)
	assert.Equal(t, 5, listing.Meta.Total)

	listing, err = c.GanttTasks(ctx, TaskQuery{Assignee: "編集者"})
	require.NoError(t, err)
	require.Len(t, listing.Data, 5)
	assert.Equal(t, "auto", listing.Data[0].TaskOrigin)

	created, err := c.CreateTask(ctx, map[string]any{"title": "Captions", "due_date": "2025-03-28"})
	require.NoError(t, err)
	assert.True(t, created.Data.IsGeneral)

	updated, err := c.UpdateTask(ctx, created.Data.ID, map[string]any{"progress": 40, "priority": map[string]any{"level": 7}})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Data.Progress)
	require.Len(t, updated.Warnings, 1)
	assert.Equal(t, "priority", updated.Warnings[0].Field)

	_, missing, err := c.ReorderTasks(ctx, []int64{created.Data.ID, 999999})
	require.NoError(t, err)
	assert.Equal(t, []int64{999999}, missing)

	require.NoError(t, c.DeleteTask(ctx, created.Data.ID))

	delivered, err := c.ToggleDelivered(ctx, project.ID, true)
	require.NoError(t, err)
	assert.True(t, delivered.Delivered)
	assert.Equal(t, "2025-03-20", delivered.DeliveryDate)

	page, err := c.EventsPage(ctx, 3, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

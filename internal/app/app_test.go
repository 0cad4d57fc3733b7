package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"reelboard/internal/domain"
	"reelboard/internal/engine"
)

func TestOpenSeedsAndRestores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC) }

	core, logs := observer.New(zapcore.InfoLevel)
	a, err := Open(ctx, Options{Workspace: dir, Logger: zap.New(core), Now: now, SeedUsers: true, Reconcile: true})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("applied migrations").Len())
	assert.Equal(t, 1, logs.FilterMessage("seeded default users; change their passwords").Len())

	users, err := a.Engine.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	c, err := a.Engine.CreateCompany(ctx, engine.CompanyCreateOptions{Name: "Acme", Code: "ACM", Actor: "t"})
	require.NoError(t, err)
	p, err := a.Engine.CreateProject(ctx, engine.ProjectCreateOptions{
		CompanyID: c.ID, Name: "Teaser", Status: domain.StatusReview, DueDate: "2025-04-01", Assignee: "編集者", Actor: "t",
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	core, logs = observer.New(zapcore.InfoLevel)
	a, err = Open(ctx, Options{Workspace: dir, Logger: zap.New(core), Now: now, SeedUsers: true, Reconcile: true})
	require.NoError(t, err)
	defer a.Close()
	assert.Zero(t, logs.FilterMessage("applied migrations").Len())
	assert.Zero(t, logs.FilterMessage("seeded default users; change their passwords").Len())
	ready := logs.FilterMessage("gantt ready").All()
	require.Len(t, ready, 1)
	assert.EqualValues(t, 1, ready[0].ContextMap()["projects"])

	tasks, err := a.Engine.ProjectTasks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 5)
	assert.Equal(t, domain.StatusReview, tasks[3].Status)
}

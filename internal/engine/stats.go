package engine

import (
	"context"

	"reelboard/internal/domain"
	"reelboard/internal/repo"
)

// DashboardStats counts projects by state, companies and gantt tasks by status.
func (e Engine) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return domain.DashboardStats{}, err
	}
	companies, err := e.Repo.ListCompanies(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	stats := domain.DashboardStats{
		TotalProjects:  len(projects),
		TotalCompanies: len(companies),
		TasksByStatus:  map[string]int{},
	}
	for _, p := range projects {
		switch p.Status {
		case domain.StatusInProgress, domain.StatusReview:
			stats.ActiveProjects++
		case domain.StatusDone:
			stats.CompletedProjects++
		case domain.StatusPlanning:
			stats.PendingProjects++
		}
	}
	_ = e.read(func() error {
		for _, t := range e.Board.AllTasks() {
			stats.TotalTasks++
			stats.TasksByStatus[t.Status]++
		}
		return nil
	})
	return stats, nil
}

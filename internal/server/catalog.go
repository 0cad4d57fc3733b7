package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"reelboard/internal/domain"
	"reelboard/internal/engine"
	"reelboard/internal/engine/auth"
	"reelboard/internal/repo"
)

type idPath struct {
	ID int64 `path:"id"`
}

func registerCompanies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-companies",
		Method:      http.MethodGet,
		Path:        "/companies",
		Summary:     "List companies",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Company `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermCompanyRead); err != nil {
			return nil, err
		}
		items, err := e.ListCompanies(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Company{}
		}
		return &struct {
			Body []domain.Company `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-company",
		Method:        http.MethodPost,
		Path:          "/companies",
		Summary:       "Create company",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateCompanyRequest `json:"body"`
	}) (*struct {
		Body domain.Company `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermCompanyWrite)
		if err != nil {
			return nil, err
		}
		c, err := e.CreateCompany(ctx, engine.CompanyCreateOptions{Name: input.Body.Name, Code: input.Body.Code, Actor: p.Actor()})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Company `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-company",
		Method:      http.MethodGet,
		Path:        "/companies/{id}",
		Summary:     "Get company with its projects",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body engine.CompanyDetail `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermCompanyRead); err != nil {
			return nil, err
		}
		c, err := e.GetCompany(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CompanyDetail `json:"body"`
		}{Body: c}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID int64  `query:"company_id"`
		Status    string `query:"status"`
		Delivered string `query:"delivered" enum:"true,false,"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermProjectRead); err != nil {
			return nil, err
		}
		f := repo.ProjectFilters{CompanyID: input.CompanyID, Status: input.Status}
		if input.Delivered != "" {
			v, err := strconv.ParseBool(input.Delivered)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "delivered must be true or false", nil)
			}
			f.Delivered = &v
		}
		items, err := e.ListProjects(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project and lay out its stages",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermProjectWrite)
		if err != nil {
			return nil, err
		}
		b := input.Body
		project, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			CompanyID:        b.CompanyID,
			Name:             b.Name,
			Status:           b.Status,
			DueDate:          b.DueDate,
			Assignee:         b.Assignee,
			VideoAxis:        b.VideoAxis,
			CompletionLength: b.CompletionLength,
			RawMaterialURL:   b.RawMaterialURL,
			ScriptURL:        b.ScriptURL,
			FinalVideoURL:    b.FinalVideoURL,
			Actor:            p.Actor(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermProjectRead); err != nil {
			return nil, err
		}
		p, err := e.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{id}",
		Summary:     "Update project and regenerate its stages",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermProjectWrite)
		if err != nil {
			return nil, err
		}
		project, err := e.UpdateProject(ctx, input.Body.options(input.ID, p.Actor()))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete project with its tasks",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		p, err := requirePerm(ctx, auth.PermProjectDelete)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteProject(ctx, input.ID, p.Actor()); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-delivered",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/toggle-delivered",
		Summary:     "Mark a project delivered today, or clear the delivery",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                  `path:"id"`
		Body ToggleDeliveredRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermProjectWrite)
		if err != nil {
			return nil, err
		}
		project, err := e.ToggleDelivered(ctx, input.ID, input.Body.Delivered, p.Actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-timeline",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/timeline",
		Summary:     "Status timeline of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.Timeline `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermProjectRead); err != nil {
			return nil, err
		}
		tl, err := e.ProjectTimeline(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Timeline `json:"body"`
		}{Body: tl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/tasks",
		Summary:     "Tasks of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64  `path:"id"`
		View string `query:"view" enum:"plan,actual," default:"plan"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskRead)
		if err != nil {
			return nil, err
		}
		tasks, err := e.ProjectTasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Data: serialize(visible(tasks, p), input.View, false)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/gantt/initialize",
		Summary:     "Regenerate the stage tasks of a project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body taskList `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskWrite)
		if err != nil {
			return nil, err
		}
		tasks, err := e.InitializeProjectGantt(ctx, input.ID, p.Actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Data: serialize(tasks, "", false)}}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-stats",
		Method:      http.MethodGet,
		Path:        "/dashboard/stats",
		Summary:     "Project and task counters",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.DashboardStats `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermProjectRead); err != nil {
			return nil, err
		}
		stats, err := e.DashboardStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DashboardStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermUserWrite); err != nil {
			return nil, err
		}
		users, err := e.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermUserWrite)
		if err != nil {
			return nil, err
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Role:     input.Body.Role,
			Password: input.Body.Password,
			Actor:    p.Actor(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"company,project,task,user,api_key,"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermProjectRead); err != nil {
			return nil, err
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

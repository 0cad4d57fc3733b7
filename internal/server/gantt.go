package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"reelboard/internal/domain"
	"reelboard/internal/engine"
	"reelboard/internal/engine/auth"
	"reelboard/internal/gantt"
	"reelboard/internal/repo"
)

type taskList struct {
	Data []gantt.TaskView `json:"data"`
}

func viewer(p auth.Principal) gantt.Viewer {
	return gantt.Viewer{Name: p.Name, Role: p.Role}
}

func visible(tasks []domain.Task, p auth.Principal) []domain.Task {
	return gantt.VisibleTo(tasks, viewer(p))
}

func serialize(tasks []domain.Task, view string, includeHistory bool) []gantt.TaskView {
	return gantt.SerializeTasks(tasks, view, includeHistory)
}

type ganttQuery struct {
	View           string `query:"view" enum:"plan,actual," default:"plan"`
	ProjectID      string `query:"project_id" doc:"Project id, or 'general' for tasks outside any project"`
	Assignee       string `query:"assignee"`
	Status         string `query:"status"`
	Keyword        string `query:"keyword"`
	StartDate      string `query:"start_date" doc:"YYYY-MM-DD"`
	EndDate        string `query:"end_date" doc:"YYYY-MM-DD"`
	IncludeHistory bool   `query:"include_history"`
}

func (q ganttQuery) filters() (gantt.Filters, error) {
	return gantt.FiltersFromParams(map[string]string{
		"project_id": q.ProjectID,
		"assignee":   q.Assignee,
		"status":     q.Status,
		"keyword":    q.Keyword,
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
	})
}

func registerGantt(api huma.API, e engine.Engine) {
	listTasks := func(ctx context.Context, input *ganttQuery) (*struct {
		Body engine.GanttListing `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskRead)
		if err != nil {
			return nil, err
		}
		f, err := input.filters()
		if err != nil {
			return nil, handleError(err)
		}
		listing, err := e.GanttTasks(ctx, engine.GanttQuery{
			Filters:        f,
			View:           input.View,
			IncludeHistory: input.IncludeHistory,
			Viewer:         viewer(p),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.GanttListing `json:"body"`
		}{Body: listing}, nil
	}
	huma.Register(api, huma.Operation{
		OperationID: "gantt-tasks",
		Method:      http.MethodGet,
		Path:        "/gantt/tasks",
		Summary:     "Chart-ready tasks with filter options",
		Errors:      []int{http.StatusBadRequest},
	}, listTasks)
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, listTasks)

	huma.Register(api, huma.Operation{
		OperationID: "gantt-summary",
		Method:      http.MethodGet,
		Path:        "/gantt/summary",
		Summary:     "One row per project with phases and status timeline",
	}, func(ctx context.Context, input *struct {
		CompanyID int64 `query:"company_id"`
	}) (*struct {
		Body []gantt.ProjectSummary `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermProjectRead)
		if err != nil {
			return nil, err
		}
		rows, err := e.GanttSummary(ctx, repo.ProjectFilters{CompanyID: input.CompanyID}, viewer(p))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []gantt.ProjectSummary `json:"body"`
		}{Body: rows}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/gantt/tasks/{id}/history",
		Summary:     "Change log of a task, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body []domain.TaskHistoryEntry `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskRead)
		if err != nil {
			return nil, err
		}
		h, err := e.TaskHistory(ctx, input.ID, viewer(p))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskHistoryEntry `json:"body"`
		}{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-tasks",
		Method:      http.MethodPost,
		Path:        "/gantt/tasks/reorder",
		Summary:     "Assign order_index from the position in ids",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ReorderRequest `json:"body"`
	}) (*struct {
		Body engine.ReorderResult `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskWrite)
		if err != nil {
			return nil, err
		}
		res, err := e.ReorderTasks(ctx, input.Body.IDs, viewer(p), p.Actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReorderResult `json:"body"`
		}{Body: res}, nil
	})
}

// decodeTaskBody reads a loosely typed task payload.
func decodeTaskBody(raw []byte) (gantt.TaskPatch, []gantt.ValidationError, error) {
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return gantt.TaskPatch{}, nil, newAPIError(http.StatusBadRequest, "bad_request", "body must be a JSON object", nil)
		}
	}
	patch, errs := gantt.ParsePatch(fields)
	return patch, errs, nil
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a manual task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskWrite)
		if err != nil {
			return nil, err
		}
		patch, errs, err := decodeTaskBody(input.RawBody)
		if err != nil {
			return nil, err
		}
		if len(errs) > 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", errs[0].Error(), map[string]any{"errors": fieldErrors(errs)})
		}
		t, err := e.CreateTask(ctx, engine.CreateOptionsFromPatch(patch, p.Actor()))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{Data: gantt.SerializeTask(t, gantt.ViewPlan, false)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID             int64 `path:"id"`
		IncludeHistory bool  `query:"include_history"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskRead)
		if err != nil {
			return nil, err
		}
		t, err := e.GetTask(ctx, input.ID, viewer(p))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{Data: gantt.SerializeTask(t, gantt.ViewPlan, input.IncludeHistory)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update a task; uninterpretable fields are reported and skipped",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      int64  `path:"id"`
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermTaskWrite)
		if err != nil {
			return nil, err
		}
		patch, errs, err := decodeTaskBody(input.RawBody)
		if err != nil {
			return nil, err
		}
		if patch.Empty() && len(errs) > 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", errs[0].Error(), map[string]any{"errors": fieldErrors(errs)})
		}
		t, err := e.UpdateTask(ctx, input.ID, patch, viewer(p), p.Actor())
		if err != nil {
			return nil, handleError(err)
		}
		resp := TaskResponse{Data: gantt.SerializeTask(t, gantt.ViewPlan, false)}
		if len(errs) > 0 {
			resp.Warnings = fieldErrors(errs)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a manual task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		p, err := requirePerm(ctx, auth.PermTaskDelete)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteTask(ctx, input.ID, p.Actor()); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, actor, engine.TaskCreateOptions{
			Description:   input.Body.Description,
			Location:      input.Body.Location,
			EstimatedCost: input.Body.EstimatedCost,
			Priority:      input.Body.Priority,
			Deadline:      input.Body.Deadline,
			Dependencies:  input.Body.Dependencies,
			Comments:      input.Body.Comments,
			Attachments:   input.Body.Attachments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Priority string `query:"priority"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListTasks(ctx, actor, repo.TaskFilters{
			Status:   input.Status,
			Priority: input.Priority,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}",
		Summary:     "Overwrite task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TaskID int64             `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, actor, input.TaskID, engine.TaskUpdateOptions{
			Description:   input.Body.Description,
			Location:      input.Body.Location,
			EstimatedCost: input.Body.EstimatedCost,
			FinalCost:     input.Body.FinalCost,
			Status:        input.Body.Status,
			Priority:      input.Body.Priority,
			Deadline:      input.Body.Deadline,
			Dependencies:  input.Body.Dependencies,
			Comments:      input.Body.Comments,
			Attachments:   input.Body.Attachments,
			BeforeScan:    input.Body.BeforeScan,
			AfterScan:     input.Body.AfterScan,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-priority",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/priority",
		Summary:     "Set task priority",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TaskID int64              `path:"task_id"`
		Body   SetPriorityRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetPriority(ctx, actor, input.TaskID, input.Body.Priority)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-order-list",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/order-list",
		Summary:     "Inventory items to reorder for a task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id"`
	}) (*struct {
		Body OrderListResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ids, err := e.GenerateOrderList(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderListResponse `json:"body"`
		}{Body: OrderListResponse{TaskID: input.TaskID, ItemIDs: ids}}, nil
	})
}

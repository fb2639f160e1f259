package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

func registerInventory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-inventory-item",
		Method:        http.MethodPost,
		Path:          "/inventory",
		Summary:       "Create inventory item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body InventoryItemRequest `json:"body"`
	}) (*struct {
		Body domain.InventoryItem `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := e.CreateInventoryItem(ctx, actor, engine.InventoryItemOptions{
			Name:     input.Body.Name,
			Quantity: input.Body.Quantity,
			Location: input.Body.Location,
			TaskID:   input.Body.TaskID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InventoryItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inventory-item",
		Method:      http.MethodGet,
		Path:        "/inventory/{item_id}",
		Summary:     "Get inventory item",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ItemID int64 `path:"item_id"`
	}) (*struct {
		Body domain.InventoryItem `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := e.GetInventoryItem(ctx, actor, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InventoryItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-inventory",
		Method:      http.MethodGet,
		Path:        "/inventory",
		Summary:     "List inventory items",
		Errors:      []int{http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.InventoryItem `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListInventoryItems(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.InventoryItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-inventory-item",
		Method:      http.MethodPut,
		Path:        "/inventory/{item_id}",
		Summary:     "Overwrite inventory item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ItemID int64                `path:"item_id"`
		Body   InventoryItemRequest `json:"body"`
	}) (*struct {
		Body domain.InventoryItem `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := e.UpdateInventoryItem(ctx, actor, input.ItemID, engine.InventoryItemOptions{
			Name:     input.Body.Name,
			Quantity: input.Body.Quantity,
			Location: input.Body.Location,
			TaskID:   input.Body.TaskID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InventoryItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-inventory-item",
		Method:        http.MethodDelete,
		Path:          "/inventory/{item_id}",
		Summary:       "Delete inventory item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ItemID int64 `path:"item_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteInventoryItem(ctx, actor, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

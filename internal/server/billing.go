package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

func estimateOptions(r EstimateRequest) engine.EstimateOptions {
	return engine.EstimateOptions{
		TaskIDs: r.TaskIDs,
		Total:   r.Total,
		Region:  r.Region,
		Store:   r.Store,
		Manager: r.Manager,
	}
}

func registerBilling(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-estimate",
		Method:        http.MethodPost,
		Path:          "/estimates",
		Summary:       "Create estimate",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body EstimateRequest `json:"body"`
	}) (*struct {
		Body domain.Estimate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		est, err := e.CreateEstimate(ctx, actor, estimateOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Estimate `json:"body"`
		}{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-estimate",
		Method:      http.MethodGet,
		Path:        "/estimates/{estimate_id}",
		Summary:     "Get estimate",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		EstimateID int64 `path:"estimate_id"`
	}) (*struct {
		Body domain.Estimate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		est, err := e.GetEstimate(ctx, actor, input.EstimateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Estimate `json:"body"`
		}{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-estimates",
		Method:      http.MethodGet,
		Path:        "/estimates",
		Summary:     "List estimates",
		Errors:      []int{http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.Estimate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ests, err := e.ListEstimates(ctx, actor, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Estimate `json:"body"`
		}{Body: ests}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-estimate",
		Method:      http.MethodPut,
		Path:        "/estimates/{estimate_id}",
		Summary:     "Overwrite estimate",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		EstimateID int64           `path:"estimate_id"`
		Body       EstimateRequest `json:"body"`
	}) (*struct {
		Body domain.Estimate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		est, err := e.UpdateEstimate(ctx, actor, input.EstimateID, estimateOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Estimate `json:"body"`
		}{Body: est}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-invoice",
		Method:        http.MethodPost,
		Path:          "/invoices",
		Summary:       "Create invoice",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body EstimateRequest `json:"body"`
	}) (*struct {
		Body domain.Invoice `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.CreateInvoice(ctx, actor, estimateOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invoice `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-invoice",
		Method:      http.MethodGet,
		Path:        "/invoices/{invoice_id}",
		Summary:     "Get invoice",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		InvoiceID int64 `path:"invoice_id"`
	}) (*struct {
		Body domain.Invoice `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.GetInvoice(ctx, actor, input.InvoiceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invoice `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/invoices",
		Summary:     "List invoices",
		Errors:      []int{http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.Invoice `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		invs, err := e.ListInvoices(ctx, actor, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Invoice `json:"body"`
		}{Body: invs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-invoice",
		Method:      http.MethodPut,
		Path:        "/invoices/{invoice_id}",
		Summary:     "Overwrite invoice",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		InvoiceID int64           `path:"invoice_id"`
		Body      EstimateRequest `json:"body"`
	}) (*struct {
		Body domain.Invoice `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.UpdateInvoice(ctx, actor, input.InvoiceID, estimateOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invoice `json:"body"`
		}{Body: inv}, nil
	})
}

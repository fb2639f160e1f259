package server

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
	"fieldline/internal/providers"
)

func registerProviders(api huma.API, e engine.Engine, svc *providers.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-address",
		Method:      http.MethodPost,
		Path:        "/address/validate",
		Summary:     "Validate and normalize an address",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ValidateAddressRequest `json:"body"`
	}) (*struct {
		Body providers.ValidatedAddress `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res, err := svc.ValidateAddress(ctx, input.Body.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body providers.ValidatedAddress `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scan-receipt",
		Method:      http.MethodPost,
		Path:        "/receipts/scan",
		Summary:     "Extract text from a receipt image",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusBadGateway, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ScanReceiptRequest `json:"body"`
	}) (*struct {
		Body providers.ReceiptText `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
			return nil, handleError(err)
		}
		image, err := base64.StdEncoding.DecodeString(input.Body.Image)
		if err != nil {
			return nil, handleError(engine.InvalidInputError{Field: "image", Reason: "must be base64-encoded"})
		}
		res, err := svc.ScanReceipt(ctx, image)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.TaskID != nil {
			slot := engine.ScanSlotAfter
			if input.Body.Slot != nil {
				slot = *input.Body.Slot
			}
			if _, err := e.RecordScan(ctx, actor, *input.Body.TaskID, slot, res.Text); err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body providers.ReceiptText `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "drive-time",
		Method:      http.MethodPost,
		Path:        "/drive-time",
		Summary:     "Estimate drive time between two addresses",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DriveTimeRequest `json:"body"`
	}) (*struct {
		Body providers.DriveTime `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res, err := svc.CalculateDriveTime(ctx, input.Body.Origin, input.Body.Destination)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body providers.DriveTime `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-notification",
		Method:        http.MethodPost,
		Path:          "/notifications",
		Summary:       "Send a push notification",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body NotifyRequest `json:"body"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// Dispatchers push assignment alerts to field crews.
		if err := auth.Authorize(actor.Role, auth.RoleDispatcher); err != nil {
			return nil, handleError(err)
		}
		// Fire-and-forget: delivery failures are logged, never surfaced.
		svc.SendPush(ctx, providers.PushMessage{
			DeviceToken: input.Body.DeviceToken,
			Title:       input.Body.Title,
			Body:        input.Body.Body,
		})
		return &struct{}{}, nil
	})
}

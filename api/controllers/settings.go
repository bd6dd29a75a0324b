package controllers

import (
	"net/http"

	"github.com/angelmondragon/easevote-backend/api/responses"
	"github.com/angelmondragon/easevote-backend/api/validators"
	"github.com/angelmondragon/easevote-backend/internal/settings"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

type gatewaySettingRequest struct {
	Gateway string `json:"gateway" validate:"required,gateway"`
}

// AdminPaymentGateway returns the active gateway and the configured variants.
func AdminPaymentGateway(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		setting, err := svc.GetActiveGateway(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, setting)
	}
}

// AdminSetPaymentGateway switches the gateway used for new purchases.
func AdminSetPaymentGateway(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		var req gatewaySettingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		setting, err := svc.SetActiveGateway(r.Context(), req.Gateway)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "gateway", string(setting.Active)), "settings.payment_gateway.updated")
		}
		responses.WriteSuccess(w, setting)
	}
}

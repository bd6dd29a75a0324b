package controllers

import (
	"net/http"

	"github.com/angelmondragon/easevote-backend/api/responses"
	"github.com/angelmondragon/easevote-backend/api/validators"
	"github.com/angelmondragon/easevote-backend/internal/ussd"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

// USSDCallback answers one hop of an aggregator dialogue. The aggregator
// expects the bare USSD payload, not the API envelope.
func USSDCallback(svc ussd.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ussd service unavailable"))
			return
		}

		var req ussd.Request
		if err := validators.DecodeJSONBodyLenient(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.Handle(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteRaw(w, http.StatusOK, resp)
	}
}

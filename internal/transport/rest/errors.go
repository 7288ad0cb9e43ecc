package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chairside/backend/internal/api/chairsidev1"
	"chairside/backend/internal/service/scheduling"
	"chairside/backend/internal/store"
)

func writeError(c echo.Context, code int, msg string, reasons []scheduling.Reason) error {
	body := chairsidev1.ErrorBody{Error: msg}
	if len(reasons) > 0 {
		body.Reason = string(reasons[0])
		for _, r := range reasons {
			body.Reasons = append(body.Reasons, string(r))
		}
	}
	return c.JSON(code, body)
}

func badRequest(c echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, msg, []scheduling.Reason{scheduling.ReasonInvalidArgument})
}

func (h *Handler) fail(c echo.Context, op string, err error) error {
	reasons := scheduling.ReasonsOf(err)

	var vErr *scheduling.ValidationError
	var cErr *scheduling.ConflictError
	switch {
	case errors.As(err, &vErr):
		return writeError(c, http.StatusBadRequest, vErr.Error(), reasons)
	case errors.As(err, &cErr):
		h.log.Info(op+" conflict", slog.String("resources", cErr.Error()))
		return writeError(c, http.StatusConflict, "The practitioner or room is already booked during that time. Pick a different slot.", reasons)
	case errors.Is(err, store.ErrNotFound):
		return writeError(c, http.StatusNotFound, "booking not found", reasons)
	case errors.Is(err, store.ErrIdempotencyConflict):
		return writeError(c, http.StatusConflict, "This request key was already used for a different booking. Try again.", reasons)
	case errors.Is(err, store.ErrConflict):
		return writeError(c, http.StatusConflict, "The practitioner or room is already booked during that time. Pick a different slot.", reasons)
	}

	h.log.Error(op+" failed", slog.Any("err", err))
	return writeError(c, http.StatusInternalServerError, "internal error", nil)
}

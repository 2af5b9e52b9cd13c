package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/utils"
)

// writeError maps the service error taxonomy onto HTTP status codes. Every
// error body carries a machine-readable code; conflicts additionally carry
// the colliding match id so clients can redirect.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validation *models.ValidationError
		authz      *models.AuthorizationError
		notFound   *models.NotFoundError
		conflict   *models.ConflictError
		state      *models.StateError
	)
	switch {
	case errors.As(err, &validation):
		utils.JSON(w, http.StatusBadRequest, models.ErrorResponse{
			Code: "VALIDATION", Message: validation.Msg,
		})
	case errors.As(err, &authz):
		utils.JSON(w, http.StatusForbidden, models.ErrorResponse{
			Code: "FORBIDDEN", Message: authz.Msg,
		})
	case errors.As(err, &notFound):
		utils.JSON(w, http.StatusNotFound, models.ErrorResponse{
			Code: "NOT_FOUND", Message: notFound.Msg,
		})
	case errors.As(err, &conflict):
		utils.JSON(w, http.StatusConflict, models.ErrorResponse{
			Code: "CONFLICT", Message: conflict.Msg, MatchID: conflict.MatchID,
		})
	case errors.As(err, &state):
		utils.JSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{
			Code: "INVALID_STATE", Message: state.Error(),
		})
	default:
		logger.Error("internal error", zap.Error(err))
		utils.JSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Code: "INTERNAL", Message: "internal server error",
		})
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/orders"
)

type errorResponse struct {
	Error     string `json:"error"`
	ProductID int    `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps an error from the service layer to a status code
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *orders.ProductNotFoundError
	var insufficient *orders.InsufficientStockError

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, orders.ErrInvalidRequest), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), ProductID: notFound.ProductID})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			ProductID: insufficient.ProductID,
			Requested: insufficient.Requested,
		})
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orders.ErrStorageFailure):
		h.Logger.Error("storage failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
	default:
		h.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

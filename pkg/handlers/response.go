package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumenlake/catalog-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceError maps service-layer sentinel errors to HTTP responses.
func ServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrAlreadyTerminal):
		return ErrorResponse(w, http.StatusConflict, "already_terminal", err.Error())
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		return ErrorResponse(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case errors.Is(err, apperrors.ErrSourceUnreadable):
		return ErrorResponse(w, http.StatusBadRequest, "source_unreadable", err.Error())
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

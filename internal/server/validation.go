package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"radyo/internal/catalog"

	"github.com/sirupsen/logrus"
)

const (
	maxStationIDLength = catalog.MaxIDLength
	maxSearchLength    = 1000
	maxSurfaceName     = 255
	defaultHistory     = 50
	maxHistory         = 500
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as the JSON body with the given status
func (rs *RadioServer) respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.logger.WithError(err).Warn("Failed to encode response")
	}
}

// respondWithValidationError sends a structured validation error response
func (rs *RadioServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	rs.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	rs.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (rs *RadioServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := rs.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Debug("Client error")
	}

	rs.respondJSON(w, statusCode, map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// validateStationID checks a station id taken from the path or a body
func validateStationID(id string) *ValidationError {
	if id == "" {
		return &ValidationError{
			Field:   "station_id",
			Message: "Station ID is required",
			Code:    "MISSING_STATION_ID",
		}
	}

	if len(id) > maxStationIDLength {
		return &ValidationError{
			Field:   "station_id",
			Message: "Station ID too long (max 128 characters)",
			Code:    "STATION_ID_TOO_LONG",
		}
	}

	if !catalog.ValidID(id) {
		return &ValidationError{
			Field:   "station_id",
			Message: "Station ID contains invalid characters",
			Code:    "INVALID_STATION_ID",
		}
	}

	return nil
}

// validateSearchQuery validates search query parameters
func validateSearchQuery(query string) *ValidationError {
	if len(query) > maxSearchLength {
		return &ValidationError{
			Field:   "q",
			Message: "Search query too long (max 1000 characters)",
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}

	// Check for potentially dangerous characters
	if strings.Contains(query, "\x00") {
		return &ValidationError{
			Field:   "q",
			Message: "Search query contains invalid characters",
			Code:    "INVALID_SEARCH_CHARACTERS",
		}
	}

	return nil
}

// parseHistoryLimit reads the limit query parameter
func parseHistoryLimit(raw string) (int, *ValidationError) {
	if raw == "" {
		return defaultHistory, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{
			Field:   "limit",
			Message: "Limit must be a valid integer",
			Code:    "INVALID_LIMIT_FORMAT",
		}
	}

	if limit <= 0 || limit > maxHistory {
		return 0, &ValidationError{
			Field:   "limit",
			Message: "Limit must be between 1 and 500",
			Code:    "INVALID_LIMIT_VALUE",
		}
	}

	return limit, nil
}

// validateSurfaceName validates the display name of a surface
func validateSurfaceName(name string) *ValidationError {
	if len(name) > maxSurfaceName {
		return &ValidationError{
			Field:   "name",
			Message: "Surface name too long (max 255 characters)",
			Code:    "SURFACE_NAME_TOO_LONG",
		}
	}

	if strings.Contains(name, "\x00") || strings.Contains(name, "\n") || strings.Contains(name, "\r") {
		return &ValidationError{
			Field:   "name",
			Message: "Surface name contains invalid characters",
			Code:    "INVALID_SURFACE_NAME_CHARACTERS",
		}
	}

	return nil
}

// sanitizeInput sanitizes user input to prevent injection attacks
func sanitizeInput(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}

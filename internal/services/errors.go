package services

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

const defaultErrorMessage = "An unexpected error occurred. Please try again after some time"

// APIError is a business-rule or authorization failure that carries its own
// client-facing status code. Anything else surfacing from a service is
// treated as internal and never leaks past the boundary.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

var (
	ErrUnauthorized        = &APIError{Code: http.StatusUnauthorized, Message: "You are not authorized"}
	ErrBadCredentials      = &APIError{Code: http.StatusBadRequest, Message: "Username or password is incorrect"}
	ErrFarmerNotFound      = &APIError{Code: http.StatusBadRequest, Message: "Farmer not found"}
	ErrInvalidSelection    = &APIError{Code: http.StatusBadRequest, Message: "Invalid products selections"}
	ErrInsufficientStock   = &APIError{Code: http.StatusBadRequest, Message: "Not enough product quantities to satisfy transaction"}
	ErrInsufficientBalance = &APIError{Code: http.StatusBadRequest, Message: "Not enough wallet balance to complete transaction"}
)

// HandleServiceError converts an error into the uniform {message, code}
// response. APIError values pass through with their own code; everything
// else is logged in full and reported as a generic 500.
func HandleServiceError(w http.ResponseWriter, tag string, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		log.Printf("[%s] Request rejected: %s", tag, apiErr.Message)
		writeError(w, apiErr)
		return
	}

	log.Printf("[%s] Internal error: %v", tag, err)
	writeError(w, &APIError{Code: http.StatusInternalServerError, Message: defaultErrorMessage})
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Code)
	json.NewEncoder(w).Encode(apiErr)
}

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

type ErrorCode string

const (
	ErrInit              ErrorCode = "INIT_FAILED"
	ErrTokenResolution   ErrorCode = "TOKEN_RESOLUTION"
	ErrNoPages           ErrorCode = "NO_PAGES"
	ErrSubscription      ErrorCode = "SUBSCRIPTION_LOOKUP"
	ErrNoConversations   ErrorCode = "NO_CONVERSATIONS"
	ErrEmptyConversation ErrorCode = "EMPTY_CONVERSATION"
	ErrSend              ErrorCode = "SEND_FAILED"
	ErrSenderProfile     ErrorCode = "SENDER_PROFILE"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrValidation        ErrorCode = "VALIDATION"
)

type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound, ErrNoConversations, ErrEmptyConversation:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrInit:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New builds an AppError with the given code, wrapping err (which may be nil).
func New(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode()
		response := ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		WriteJSON(w, status, response)
		return
	}

	log.Printf("Internal error: %v", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

package api

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest       = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized     = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrNotFound         = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrUserNotFound     = &AppError{Code: http.StatusNotFound, Message: "user not found"}
	ErrInternalServer   = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidToken     = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrInvalidState     = &AppError{Code: http.StatusBadRequest, Message: "invalid or expired login state"}
	ErrInvalidSignature = &AppError{Code: http.StatusBadRequest, Message: "invalid webhook signature"}
	ErrLimitReached     = &AppError{Code: http.StatusTooManyRequests, Message: "daily prompt limit reached"}
	ErrUpstream         = &AppError{Code: http.StatusBadGateway, Message: "upstream provider error"}
	ErrMailNotConnected = &AppError{Code: http.StatusUnauthorized, Message: "google mailbox not connected, sign in again"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

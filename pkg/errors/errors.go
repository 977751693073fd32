package errors

import (
	stderrors "errors"
	"fmt"
)

const (
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeInvalidReq       = "INVALID_REQUEST"
	ErrCodeGeminiAPI        = "GEMINI_API_ERROR"
	ErrCodeImageGenAPI      = "IMAGE_GEN_API_ERROR"
	ErrCodeStorage          = "STORAGE_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeNotInitialized   = "NOT_INITIALIZED"
	ErrCodeGenerationActive = "GENERATION_ACTIVE"
	ErrCodeNothingToUndo    = "NOTHING_TO_UNDO"
	ErrCodeNothingToRedo    = "NOTHING_TO_REDO"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether any AppError in err's chain carries code.
func Is(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsRateLimited is the rate-limit classification the task queue retries on.
func IsRateLimited(err error) bool {
	return Is(err, ErrCodeRateLimited)
}

// CodeOf returns the outermost AppError code, or ErrCodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryNotFound         ErrorCategory = "not_found"
	CategoryValidation       ErrorCategory = "validation"
	CategoryInsufficientData ErrorCategory = "insufficient_data"
	CategoryNotTrained       ErrorCategory = "not_trained"
	CategoryInternal         ErrorCategory = "internal"
)

// AppError wraps an errbuilder error with the domain category and the HTTP
// status the presentation layer should surface it with.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewNotFoundError reports an unknown student, course, or model artifact.
func NewNotFoundError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewValidationError reports malformed input: a grade outside [0,5], a bad
// document ID, a duplicate enrollment, or a feature vector of the wrong shape.
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", fmt.Errorf("%v", details[0]))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewInsufficientDataError reports that too few historical enrollments exist
// to train on. Carries the observed and required counts as details.
func NewInsufficientDataError(have, want int) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("enrollments", fmt.Errorf("have %d, need %d", have, want))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("not enough enrollment data to train").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryInsufficientData, http.StatusUnprocessableEntity)
}

// NewNotTrainedError reports inference attempted before any fit or load.
func NewNotTrainedError() *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("model has not been trained")

	return NewAppError(builder, CategoryNotTrained, http.StatusConflict)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryInternal, http.StatusInternalServerError)
}

// categoryOf extracts the domain category from any error.
func categoryOf(err error) ErrorCategory {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return CategoryInternal
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return categoryOf(err) == CategoryNotFound }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return categoryOf(err) == CategoryValidation }

// IsInsufficientData reports whether err is an insufficient-data error.
func IsInsufficientData(err error) bool { return categoryOf(err) == CategoryInsufficientData }

// IsNotTrained reports whether err is a not-trained error.
func IsNotTrained(err error) bool { return categoryOf(err) == CategoryNotTrained }

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	return NewInternalError("an unexpected error occurred", err)
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			appErr := ToAppError(err)

			LogError(c, appErr)

			c.JSON(appErr.HTTPStatus, gin.H{
				"error":    appErr.ErrBuilder.Msg,
				"category": appErr.Category,
			})
			return
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, gin.H{
			"error":    appErr.ErrBuilder.Msg,
			"category": appErr.Category,
		})
	})
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
	)

	// Client-side mistakes are expected traffic; only true internals escalate.
	switch err.Category {
	case CategoryValidation, CategoryNotFound:
		logEntry.Warn(err.ErrBuilder.Msg)
	case CategoryInsufficientData, CategoryNotTrained:
		logEntry.Info(err.ErrBuilder.Msg)
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Error(err.ErrBuilder.Msg)
		}
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	contextMsg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", contextMsg, err)
}

package apierrors

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// FieldError describes a single failed request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Respond aborts the request with the JSON body for err.
// Causes are logged server-side only; clients see the taxonomy message.
func Respond(contextGin *gin.Context, logger *zap.Logger, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kind, known := Classify(err)
	if !known {
		logger.Error("unhandled error",
			zap.String("code", "api.internal_error"),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Error(err))
	} else if kind.Status >= 500 {
		logger.Warn("request failed",
			zap.String("code", "api."+kind.Code),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Error(err))
	}

	body := gin.H{
		"error": kind.Code,
		"msg":   kind.Message,
	}
	if details := fieldErrors(err); len(details) > 0 {
		body["details"] = details
	}
	contextGin.AbortWithStatusJSON(kind.Status, body)
}

func fieldErrors(err error) []FieldError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]FieldError, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details = append(details, FieldError{Field: fieldErr.Field(), Rule: fieldErr.Tag()})
	}
	return details
}

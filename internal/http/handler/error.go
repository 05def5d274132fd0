package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"kbapi/internal/http/middleware"
	"kbapi/internal/ingest"
	"kbapi/internal/model"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ingestionDetails tells an operator which pipeline step rejected a version.
type ingestionDetails struct {
	Stage      ingest.Stage `json:"stage"`
	DocumentID string       `json:"document_id"`
	VersionID  string       `json:"version_id"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeErrorDetails(c, status, code, message, nil)
}

func writeErrorDetails(c *fiber.Ctx, status int, code, message string, details any) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	return c.Status(status).JSON(res)
}

// respondError maps a domain error to its HTTP status and error code.
// Messages of authorization failures start with "not permitted" and those of
// ingestion failures with "document was not approved", so a caller can tell
// a role problem from a file problem.
func respondError(c *fiber.Ctx, err error) error {
	var ie *ingest.IngestionError
	if errors.As(err, &ie) {
		status, reason := ingestionFailure(ie.Err)
		return writeErrorDetails(c, status, "INGESTION_FAILED", "document was not approved: "+reason, ingestionDetails{
			Stage:      ie.Stage,
			DocumentID: ie.DocumentID,
			VersionID:  ie.VersionID,
		})
	}

	switch {
	case errors.Is(err, model.ErrAlreadyInProgress):
		return writeError(c, fiber.StatusConflict, "INGESTION_IN_PROGRESS", "ingestion already in progress for this version")
	case errors.Is(err, model.ErrUnauthorized):
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, model.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, model.ErrInvalidState):
		return writeError(c, fiber.StatusBadRequest, "INVALID_STATE", err.Error())
	case errors.Is(err, model.ErrValidation):
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, model.ErrConflict):
		return writeError(c, fiber.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, model.ErrUnsupportedFormat), errors.Is(err, model.ErrEmptyContent),
		errors.Is(err, model.ErrExtractionFailed), errors.Is(err, model.ErrEmbeddingFailed):
		status, reason := ingestionFailure(err)
		return writeError(c, status, "INGESTION_FAILED", "document was not approved: "+reason)
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ingestionFailure returns 422 for problems with the file itself, 502 for
// failures of the extraction or embedding capabilities and 503 when the
// attempt was cancelled.
func ingestionFailure(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnsupportedFormat):
		return fiber.StatusUnprocessableEntity, "unsupported file format"
	case errors.Is(err, model.ErrEmptyContent):
		return fiber.StatusUnprocessableEntity, "no text could be extracted from the file"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusBadGateway, "ingestion timed out"
	case errors.Is(err, context.Canceled):
		return fiber.StatusServiceUnavailable, "ingestion cancelled"
	case errors.Is(err, model.ErrExtractionFailed):
		return fiber.StatusBadGateway, "text extraction failed"
	case errors.Is(err, model.ErrEmbeddingFailed):
		return fiber.StatusBadGateway, "embedding failed"
	default:
		return fiber.StatusInternalServerError, "chunks could not be stored"
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var e *fiber.Error
		if !errors.As(err, &e) {
			return respondError(c, err)
		}

		switch e.Code {
		case fiber.StatusBadRequest:
			return writeError(c, e.Code, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, e.Code, "UNAUTHENTICATED", e.Message)
		case fiber.StatusForbidden:
			return writeError(c, e.Code, "FORBIDDEN", e.Message)
		case fiber.StatusNotFound:
			return writeError(c, e.Code, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, e.Code, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, e.Code, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, e.Code, "INTERNAL_ERROR", "internal server error")
		}
	}
}

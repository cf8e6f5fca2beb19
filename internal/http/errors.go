package http

import (
	"github.com/gofiber/fiber/v2"

	"codedox/internal/model"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// StatusClientClosedRequest is nginx's convention for a request the
// client abandoned; there is no stdlib constant for it.
const StatusClientClosedRequest = 499

func statusForKind(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return fiber.StatusBadRequest
	case model.KindNotFound:
		return fiber.StatusNotFound
	case model.KindConflict:
		return fiber.StatusConflict
	case model.KindAuth:
		return fiber.StatusUnauthorized
	case model.KindCancelled:
		return StatusClientClosedRequest
	case model.KindStorage:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func codeForKind(kind model.Kind) string {
	switch kind {
	case model.KindValidation:
		return "VALIDATION_ERROR"
	case model.KindNotFound:
		return "NOT_FOUND"
	case model.KindConflict:
		return "CONFLICT"
	case model.KindAuth:
		return "UNAUTHENTICATED"
	case model.KindCancelled:
		return "CANCELLED"
	case model.KindStorage:
		return "STORAGE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// fail renders an error using the taxonomy mapping. Messages pass
// through as-is; they never contain secrets.
func fail(c *fiber.Ctx, err error) error {
	kind := model.KindOf(err)
	return c.Status(statusForKind(kind)).JSON(ErrorResponse{
		Success: false,
		Code:    codeForKind(kind),
		Error:   err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return fail(c, model.E(model.KindValidation, msg))
}

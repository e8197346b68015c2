package services

import (
	"errors"

	"truenumber-arena/utils"

	"github.com/gofiber/fiber/v2"
)

// Business-rule violations surfaced by the registry, turn engine and
// settlement engine. Handlers and the websocket loop map these to the wire.
var (
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrNotFound            = errors.New("match not found")
	ErrForbidden           = errors.New("not a participant of this match")
	ErrInvalidState        = errors.New("operation not valid for current match status")
	ErrTurnAlreadyTaken    = errors.New("turn already taken")
	ErrInsufficientBalance = errors.New("insufficient point balance")
	ErrDependencyFailure   = errors.New("dependency failure")
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrTurnAlreadyTaken):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidParameters),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInsufficientBalance):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respondServiceError translates a service error into the ApiResponse envelope.
// Unknown errors are masked as a generic 500.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "internal server error"
	}
	return utils.RespondError(c, status, message)
}

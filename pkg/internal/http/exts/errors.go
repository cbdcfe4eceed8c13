package exts

import (
	"errors"

	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// MapError turns a service error into the matching HTTP error.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrNotMessageAuthor):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrParentNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidScope),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrInvalidEmoji),
		errors.Is(err, services.ErrInvalidVersion):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrTypingThrottled):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, services.ErrSequencingFailed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

package rest

import (
	"context"
	"errors"
	"fmt"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// writeError maps application errors to HTTP responses. Storage failures never leak
// details to the client.
func writeError(c *fiber.Ctx, err error) error {
	status, msg := fiber.StatusInternalServerError, "internal error, try again"
	switch {
	case errors.Is(err, domain.ErrBusy):
		c.Set(fiber.HeaderRetryAfter, "1")
		status, msg = fiber.StatusTooManyRequests, domain.ErrBusy.Error()
	case errors.Is(err, domain.ErrAuctionNotFound):
		status, msg = fiber.StatusNotFound, domain.ErrAuctionNotFound.Error()
	case errors.Is(err, domain.ErrNotCancellable):
		status, msg = fiber.StatusConflict, domain.ErrNotCancellable.Error()
	case errors.Is(err, domain.ErrInvalidAuction), errors.Is(err, errBadRequest):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, application.ErrViewerIDRequired):
		status, msg = fiber.StatusBadRequest, application.ErrViewerIDRequired.Error()
	case errors.Is(err, domain.ErrStandingUnavailable):
		status, msg = fiber.StatusServiceUnavailable, domain.ErrStandingUnavailable.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	default:
		log.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// bidStatus is the HTTP status of an adjudicated bid. Rejections are answered, not failed.
func bidStatus(outcome string) int {
	switch domain.Outcome(outcome) {
	case domain.OutcomeAccepted:
		return fiber.StatusOK
	case domain.OutcomeRejectedStalePrice, domain.OutcomeRejectedAuctionClosed:
		return fiber.StatusConflict
	default:
		return fiber.StatusUnprocessableEntity
	}
}

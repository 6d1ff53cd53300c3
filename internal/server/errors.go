package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/roach88/texgraph/internal/engine"
	"github.com/roach88/texgraph/internal/graph"
	"github.com/roach88/texgraph/internal/node"
)

// statusFor maps engine and graph errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, graph.ErrWouldCreateCycle), node.IsComputeError(err):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, graph.ErrSlotOccupied):
		return fiber.StatusConflict
	case errors.Is(err, graph.ErrSlotTypeMismatch),
		errors.Is(err, graph.ErrSlotOutOfRange),
		errors.Is(err, graph.ErrKindChange):
		return fiber.StatusBadRequest
	case errors.Is(err, engine.ErrClosed), errors.Is(err, engine.ErrNoWorkers), errors.Is(err, engine.ErrNotStarted):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err as {"error": ..., "code": ...}.
func (s *Server) fail(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	body := fiber.Map{"error": err.Error()}
	if code := node.ErrorCode(err); code != "" {
		body["code"] = string(code)
	}
	return c.Status(status).JSON(body)
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

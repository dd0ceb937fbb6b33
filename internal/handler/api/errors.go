package api

import (
	"context"
	"errors"
	"net/http"

	domrepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/repository"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/services/backtest"
	"QuantDesk/internal/usecase"
	xhttp "QuantDesk/pkg/http"
	"QuantDesk/pkg/queue"
)

// toAppError maps engine errors onto HTTP statuses. Unknown errors become
// a generic 500 so internals are not leaked.
func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, usecase.ErrNoCandles),
		errors.Is(err, usecase.ErrAgentNotFound),
		errors.Is(err, usecase.ErrJobNotFound),
		errors.Is(err, domrepo.ErrCheckpointNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, agent.ErrInsufficientCandles),
		errors.Is(err, backtest.ErrInsufficientCandles):
		return xhttp.NewAppError("ERR_INSUFFICIENT_CANDLES", "candles", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, backtest.ErrUnknownStrategy):
		return xhttp.NewAppError("ERR_UNKNOWN_STRATEGY", "strategy", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, agent.ErrInvalidConfig),
		errors.Is(err, agent.ErrInvalidCapital),
		errors.Is(err, backtest.ErrInvalidOptions),
		errors.Is(err, backtest.ErrInvalidCapital):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, repository.ErrCheckpointBusy):
		return xhttp.NewAppError("ERR_CONFLICT", "", err.Error(), http.StatusConflict).WithError(err)
	case errors.Is(err, queue.ErrQueueFull):
		return xhttp.NewAppError("ERR_QUEUE_FULL", "", err.Error(), http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "request timed out", http.StatusGatewayTimeout).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

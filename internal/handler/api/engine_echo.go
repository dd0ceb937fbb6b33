package api

import (
	"context"
	"net/http"
	"time"

	models "QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	domsvc "QuantDesk/internal/domain/service"
	"QuantDesk/internal/service/ratelimit"
	"QuantDesk/internal/services/agent"
	"QuantDesk/internal/usecase"
	xhttp "QuantDesk/pkg/http"
	xlogger "QuantDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

type overviewGetter interface {
	Get(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (*usecase.Overview, error)
}

type candleGetter interface {
	GetCandles(ctx context.Context, p usecase.GetCandlesParams) (*usecase.GetCandlesResult, error)
}

type trainJobs interface {
	Submit(ctx context.Context, symbol string, req models.TrainRequest) (usecase.TrainJobStatus, error)
	Status(ctx context.Context, id string) (usecase.TrainJobStatus, error)
}

// EngineEchoHandler exposes the decision engine over Echo.
type EngineEchoHandler struct {
	logger   *xlogger.Logger
	engine   domsvc.Engine
	overview overviewGetter
	candles  candleGetter
	jobs     trainJobs
	limiter  *ratelimit.Limiter
}

func NewEngineEchoHandler(logger *xlogger.Logger, engine domsvc.Engine, overview overviewGetter, candles candleGetter, jobs trainJobs, limiter *ratelimit.Limiter) *EngineEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &EngineEchoHandler{logger: logger, engine: engine, overview: overview, candles: candles, jobs: jobs, limiter: limiter}
}

func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	var limited []echo.MiddlewareFunc
	if h.limiter != nil {
		limited = append(limited, h.limiter.Middleware())
	}

	g := e.Group("/api")
	g.GET("/candles", h.Candles)
	g.GET("/indicators", h.Indicators)
	g.GET("/structure", h.Structure)
	g.GET("/signal", h.Signal)
	g.GET("/killzones", h.KillZones)
	g.GET("/overview", h.Overview)
	g.POST("/backtest", h.Backtest, limited...)

	a := g.Group("/agents")
	a.GET("", h.Agents)
	a.POST("/:symbol/train", h.Train, limited...)
	a.GET("/:symbol/predict", h.Predict)
	a.GET("/:symbol/stats", h.Stats)
	a.POST("/:symbol/reset", h.Reset)
	a.GET("/:symbol/qtable", h.GetQTable)
	a.PUT("/:symbol/qtable", h.PutQTable)
	a.PUT("/:symbol/config", h.PutConfig)
	a.POST("/:symbol/checkpoint", h.Checkpoint)
	a.POST("/:symbol/restore", h.Restore)

	if h.jobs != nil {
		a.POST("/:symbol/train/jobs", h.SubmitTrainJob, limited...)
		g.GET("/jobs/:id", h.TrainJobStatus)
	}
}

// fail logs server-side failures and writes the mapped error.
func (h *EngineEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *EngineEchoHandler) Candles(c echo.Context) error {
	req := &models.CandleQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)
	to := xhttp.QueryTime(c, "to", time.Now().UTC())
	from := xhttp.QueryTime(c, "from", to.Add(-time.Duration(req.Limit)*tf.Duration()))

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol: req.Symbol, From: from, To: to, Timeframe: tf, Limit: req.Limit,
	})
	if err != nil {
		return h.fail(c, "candles", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Indicators(c echo.Context) error {
	req := &models.CandleQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.Indicators(c.Request().Context(), req.Symbol, req.Limit, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		return h.fail(c, "indicators", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Structure(c echo.Context) error {
	req := &models.CandleQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.Structure(c.Request().Context(), req.Symbol, req.Limit, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		return h.fail(c, "structure", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Signal(c echo.Context) error {
	req := &models.CandleQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.Signal(c.Request().Context(), req.Symbol, req.Limit, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		return h.fail(c, "signal", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) KillZones(c echo.Context) error {
	at := xhttp.QueryTime(c, "at", time.Time{})
	return xhttp.SuccessResponse(c, h.engine.KillZones(at))
}

func (h *EngineEchoHandler) Overview(c echo.Context) error {
	req := &models.CandleQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.overview.Get(c.Request().Context(), req.Symbol, req.Limit, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		return h.fail(c, "overview", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.Backtest(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "backtest", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Agents(c echo.Context) error {
	res, err := h.engine.Agents(c.Request().Context())
	if err != nil {
		return h.fail(c, "agents", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.Train(c.Request().Context(), c.Param("symbol"), *req)
	if err != nil {
		return h.fail(c, "train", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *EngineEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.Predict(c.Request().Context(), c.Param("symbol"), req.Limit, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Stats(c echo.Context) error {
	res, err := h.engine.AgentStats(c.Param("symbol"))
	if err != nil {
		return h.fail(c, "stats", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Reset(c echo.Context) error {
	if err := h.engine.ResetAgent(c.Param("symbol")); err != nil {
		return h.fail(c, "reset", err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"symbol": agent.NormalizeSymbol(c.Param("symbol")), "status": "reset"})
}

func (h *EngineEchoHandler) GetQTable(c echo.Context) error {
	res, err := h.engine.QTable(c.Param("symbol"))
	if err != nil {
		return h.fail(c, "qtable", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *EngineEchoHandler) PutQTable(c echo.Context) error {
	req := &models.QTableRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	values := make(map[string]agent.QValues, len(req.QTable))
	for k, v := range req.QTable {
		values[k] = agent.QValues(v)
	}
	if err := h.engine.LoadQTable(c.Param("symbol"), values); err != nil {
		return xhttp.BadRequestResponse(c, []*xhttp.AppError{xhttp.BadRequestError(err.Error())})
	}
	return xhttp.SuccessResponse(c, map[string]int{"statesLoaded": len(values)})
}

func (h *EngineEchoHandler) PutConfig(c echo.Context) error {
	req := &models.AgentConfigRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.UpdateAgentConfig(c.Param("symbol"), *req)
	if err != nil {
		return h.fail(c, "config", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Checkpoint(c echo.Context) error {
	cp, err := h.engine.SaveCheckpoint(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return h.fail(c, "checkpoint", err)
	}
	return xhttp.CreatedResponse(c, map[string]interface{}{
		"symbol":   cp.Symbol,
		"episodes": cp.Episodes,
		"states":   len(cp.QTable),
		"savedAt":  cp.SavedAt,
	})
}

func (h *EngineEchoHandler) Restore(c echo.Context) error {
	res, err := h.engine.RestoreCheckpoint(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return h.fail(c, "restore", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) SubmitTrainJob(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.jobs.Submit(c.Request().Context(), c.Param("symbol"), *req)
	if err != nil {
		return h.fail(c, "train job", err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, st)
}

func (h *EngineEchoHandler) TrainJobStatus(c echo.Context) error {
	st, err := h.jobs.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "job status", err)
	}
	return xhttp.SuccessResponse(c, st)
}

package api

import (
	"encoding/json"
	"errors"
	"time"

	models "CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	icache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/service/metrics"
	"CoinPulse/internal/service/ratelimit"
	"CoinPulse/internal/services/registry"
	"CoinPulse/internal/usecase"
	xhttp "CoinPulse/pkg/http"
	xlogger "CoinPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EngineHandler implements the Echo-based HTTP surface of the engine.
type EngineHandler struct {
	logger     *xlogger.Logger
	ingestor   *usecase.Ingestor
	aggregator *usecase.Aggregator
	forecaster *usecase.Forecaster
	feedback   *usecase.FeedbackEngine
	history    *usecase.HistoryUseCase
	registry   *registry.Registry
	cache      icache.BytesCache
	rl         *ratelimit.Limiter
}

func NewEngineHandler(
	logger *xlogger.Logger,
	ingestor *usecase.Ingestor,
	aggregator *usecase.Aggregator,
	forecaster *usecase.Forecaster,
	feedback *usecase.FeedbackEngine,
	history *usecase.HistoryUseCase,
	reg *registry.Registry,
) *EngineHandler {
	metrics.Register()
	return &EngineHandler{
		logger:     logger,
		ingestor:   ingestor,
		aggregator: aggregator,
		forecaster: forecaster,
		feedback:   feedback,
		history:    history,
		registry:   reg,
		rl:         ratelimit.New(),
	}
}

// SetCache injects a byte cache for the read endpoints.
func (h *EngineHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, echo.Map{"status": "ok"})
	})
	g := e.Group("/api")
	g.POST("/observations", h.IngestObservations)
	g.GET("/estimate", h.Estimate)
	g.GET("/forecast", h.Forecast)
	g.POST("/feedback", h.SubmitFeedback)
	g.GET("/performance", h.Performance)
	g.GET("/history", h.History)
	g.GET("/sources", h.Sources)
}

func (h *EngineHandler) IngestObservations(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("observations").Observe(time.Since(start).Seconds()) }()

	req := &models.IngestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	batch := make([]models.RawObservation, len(req.Observations))
	for i, in := range req.Observations {
		batch[i] = models.RawObservation{
			ItemID:     in.ItemID,
			SourceID:   in.SourceID,
			Price:      in.Price,
			Currency:   in.Currency,
			ObservedAt: in.ObservedAt,
			Category:   in.Category,
			RawPayload: in.RawPayload,
		}
	}
	res, err := h.ingestor.IngestBatch(c.Request().Context(), batch)
	if err != nil {
		metrics.APIErrors.WithLabelValues("observations").Inc()
		h.logger.Error("ingest usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineHandler) Estimate(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("estimate").Observe(time.Since(start).Seconds()) }()

	req := &models.EstimateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	item := usecase.NormalizeItemID(req.Item)
	if !h.rl.Allow(c.RealIP()+":estimate", 10, 5) {
		return echo.NewHTTPError(429, "rate limited")
	}

	cacheKey := "estimate:" + item
	if b, ok := h.cached(cacheKey); ok {
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	est, err := h.aggregator.CurrentEstimate(c.Request().Context(), item)
	if errors.Is(err, domrepo.ErrNoData) {
		// nothing stored yet; aggregate on demand
		est, err = h.aggregator.AggregateItem(c.Request().Context(), item)
	}
	if err != nil {
		if errors.Is(err, domrepo.ErrNoData) {
			return xhttp.NotFoundResponse(c, echo.Map{"item": item, "reason": "no observations"})
		}
		metrics.APIErrors.WithLabelValues("estimate").Inc()
		h.logger.Error("estimate usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.storeCached(cacheKey, est, 30*time.Second)
	return xhttp.SuccessResponse(c, est)
}

func (h *EngineHandler) Forecast(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("forecast").Observe(time.Since(start).Seconds()) }()

	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	item := usecase.NormalizeItemID(req.Item)
	horizon := domrepo.NormalizeHorizon(req.Horizon)
	if !h.rl.Allow(c.RealIP()+":forecast", 5, 2) {
		return echo.NewHTTPError(429, "rate limited")
	}

	cacheKey := "forecast:" + item + ":" + string(horizon)
	if b, ok := h.cached(cacheKey); ok {
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	fc, err := h.forecaster.Forecast(c.Request().Context(), item, horizon)
	if err != nil {
		if errors.Is(err, domrepo.ErrNoData) {
			return xhttp.NotFoundResponse(c, echo.Map{"item": item, "reason": "no estimate history"})
		}
		metrics.APIErrors.WithLabelValues("forecast").Inc()
		h.logger.Error("forecast usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.storeCached(cacheKey, fc, time.Minute)
	return xhttp.SuccessResponse(c, fc)
}

func (h *EngineHandler) SubmitFeedback(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("feedback").Observe(time.Since(start).Seconds()) }()

	req := &models.FeedbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	event, err := h.feedback.Submit(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrFeedbackShape) {
			return xhttp.BadRequestResponse(c, echo.Map{"reason": err.Error()})
		}
		metrics.APIErrors.WithLabelValues("feedback").Inc()
		h.logger.Error("feedback usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	// apply inline; the periodic sweep picks up anything that fails here
	if err := h.feedback.Apply(c.Request().Context(), event.ID); err != nil && !errors.Is(err, usecase.ErrAlreadyApplied) {
		h.logger.Warn("inline feedback apply failed",
			xlogger.String("event", event.ID),
			xlogger.Error(err),
		)
	}
	return xhttp.CreatedResponse(c, event)
}

func (h *EngineHandler) Performance(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("performance").Observe(time.Since(start).Seconds()) }()

	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Category == "" {
		all, err := h.feedback.PerformanceAll(c.Request().Context())
		if err != nil {
			metrics.APIErrors.WithLabelValues("performance").Inc()
			h.logger.Error("performance usecase error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		return xhttp.ListResponse(c, all, int64(len(all)))
	}
	m, err := h.feedback.Performance(c.Request().Context(), req.Category)
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownCategory) {
			return xhttp.NotFoundResponse(c, echo.Map{"category": req.Category})
		}
		metrics.APIErrors.WithLabelValues("performance").Inc()
		h.logger.Error("performance usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, m)
}

func (h *EngineHandler) History(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("history").Observe(time.Since(start).Seconds()) }()

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	params := usecase.GetHistoryParams{Item: usecase.NormalizeItemID(req.Item)}
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, echo.Map{"from": "must be RFC3339 or unix seconds"})
		}
		params.From = t
	}
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.BadRequestResponse(c, echo.Map{"to": "must be RFC3339 or unix seconds"})
		}
		params.To = t
	}
	res, err := h.history.GetHistory(c.Request().Context(), params)
	if err != nil {
		metrics.APIErrors.WithLabelValues("history").Inc()
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineHandler) Sources(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("sources").Observe(time.Since(start).Seconds()) }()

	activeOnly := c.QueryParam("active") == "true"
	sources, err := h.registry.List(c.Request().Context(), activeOnly)
	if err != nil {
		metrics.APIErrors.WithLabelValues("sources").Inc()
		h.logger.Error("sources usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, sources, int64(len(sources)))
}

func (h *EngineHandler) cached(key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		h.logger.Warn("cache get error", xlogger.String("key", key), xlogger.Error(err))
		return nil, false
	}
	return b, ok
}

func (h *EngineHandler) storeCached(key string, v interface{}, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := h.cache.SetBytes(key, b, ttl); err != nil {
		h.logger.Warn("cache set error", xlogger.String("key", key), xlogger.Error(err))
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FuturesCast/internal/domain/models"
	domsvc "FuturesCast/internal/domain/service"
	"FuturesCast/internal/service/metrics"
	"FuturesCast/internal/service/ratelimit"
	"FuturesCast/internal/services/contracts"
	xhttp "FuturesCast/pkg/http"
	xlogger "FuturesCast/pkg/logger"
)

// Forecaster runs one forecast request end to end.
type Forecaster interface {
	Forecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResponse, error)
}

// ForecastEchoHandler serves the forecasting API.
type ForecastEchoHandler struct {
	logger  *xlogger.Logger
	fc      Forecaster
	curves  domsvc.CurveSource
	mapper  *contracts.Mapper
	rl      *ratelimit.Limiter
	metrics *metrics.APIMetrics
}

// NewForecastEchoHandler builds the handler. A nil m records to a private registry.
func NewForecastEchoHandler(logger *xlogger.Logger, fc Forecaster, curves domsvc.CurveSource, mapper *contracts.Mapper, rl *ratelimit.Limiter, m *metrics.APIMetrics) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if m == nil {
		m = metrics.NewAPIMetrics(nil)
	}
	return &ForecastEchoHandler{logger: logger, fc: fc, curves: curves, mapper: mapper, rl: rl, metrics: m}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/forecast", h.Forecast)
	g.GET("/curve", h.Curve)
	g.GET("/contracts/map", h.MapContracts)
	g.GET("/contracts/expiration", h.Expiration)
}

func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	const endpoint = "forecast"
	defer h.metrics.ObserveSince(endpoint, time.Now())

	if h.rl != nil && !h.rl.Allow(c.RealIP()) {
		h.metrics.RateLimited.Inc()
		h.logger.Warn("forecast rate limited", xlogger.String("remote", c.RealIP()))
		return h.fail(c, endpoint, xhttp.TooManyRequestsError("rate limit exceeded").WithParam("retry_after", 1))
	}

	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Error(endpoint, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.fc.Forecast(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("forecast usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return h.fail(c, endpoint, toAppError(err).WithParam("symbol", req.Symbol))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Curve(c echo.Context) error {
	const endpoint = "curve"
	defer h.metrics.ObserveSince(endpoint, time.Now())

	req := &models.CurveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Error(endpoint, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}

	opts := domsvc.CurveOptions{
		MaxContracts:     req.MaxContracts,
		ValidateCurve:    true,
		IncludeAnalytics: true,
	}
	if req.Monthly {
		opts.ContractMonths = contracts.AllMonths
	}
	res := h.curves.GetCurve(c.Request().Context(), req.Symbol, opts)
	if !res.Usable() {
		h.logger.Warn("curve unavailable", xlogger.String("symbol", req.Symbol), xlogger.Error(res.Err))
		return h.fail(c, endpoint, toAppError(res.Err).WithParam("symbol", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.WarningsResponse(c, res.Value, res.Warnings)
}

// ContractMapResponse lists the contract chosen for each horizon in request order.
type ContractMapResponse struct {
	Symbol   string                   `json:"symbol"`
	Mappings []models.ContractMapping `json:"mappings"`
	Unmapped []string                 `json:"unmapped,omitempty"`
}

func (h *ForecastEchoHandler) MapContracts(c echo.Context) error {
	const endpoint = "contracts_map"
	defer h.metrics.ObserveSince(endpoint, time.Now())

	req := &models.ContractMapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Error(endpoint, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}
	horizons, err := xhttp.ParseIntList(req.Horizons)
	if err != nil || len(horizons) == 0 {
		return h.fail(c, endpoint, xhttp.BadRequestErrorf("horizons: expected comma separated months, got %q", req.Horizons).WithError(err))
	}
	for _, m := range horizons {
		if m <= 0 {
			return h.fail(c, endpoint, xhttp.BadRequestErrorf("horizons: %d is not a positive month count", m))
		}
	}

	mappings, err := h.mapper.MapHorizonsToContracts(req.Symbol, horizons, contracts.MappingOptions{
		QuarterlyOnly:       req.Quarterly,
		MinDaysToExpiration: req.MinDays,
		MaxDaysToExpiration: req.MaxDays,
	})
	if err != nil {
		return h.fail(c, endpoint, toAppError(err))
	}

	out := ContractMapResponse{Symbol: req.Symbol, Mappings: make([]models.ContractMapping, 0, len(horizons))}
	for _, m := range horizons {
		if mp, ok := mappings[m]; ok {
			out.Mappings = append(out.Mappings, mp)
			continue
		}
		out.Unmapped = append(out.Unmapped, contracts.HorizonLabel(m))
	}
	return xhttp.SuccessResponse(c, out)
}

// ExpirationResponse describes one contract symbol.
type ExpirationResponse struct {
	Symbol           string                 `json:"symbol"`
	Parsed           contracts.ParsedSymbol `json:"parsed"`
	ExpirationDate   string                 `json:"expiration_date"`
	DaysToExpiration int                    `json:"days_to_expiration"`
	Expired          bool                   `json:"expired"`
}

func (h *ForecastEchoHandler) Expiration(c echo.Context) error {
	const endpoint = "contracts_expiration"
	defer h.metrics.ObserveSince(endpoint, time.Now())

	req := &models.ExpirationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Error(endpoint, http.StatusBadRequest)
		return xhttp.BadRequestResponse(c, verr)
	}
	parsed, exp, err := contracts.ExpirationForSymbol(req.Symbol)
	if err != nil {
		return h.fail(c, endpoint, toAppError(err))
	}
	dte := contracts.DaysBetween(h.mapper.Now(), exp)
	return xhttp.SuccessResponse(c, ExpirationResponse{
		Symbol:           req.Symbol,
		Parsed:           parsed,
		ExpirationDate:   exp.Format(time.DateOnly),
		DaysToExpiration: dte,
		Expired:          dte < 0,
	})
}

func (h *ForecastEchoHandler) fail(c echo.Context, endpoint string, appErr *xhttp.AppError) error {
	h.metrics.Error(endpoint, appErr.Status)
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto HTTP errors, keeping the originating reason.
func toAppError(err error) *xhttp.AppError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	switch {
	case models.IsInputError(err):
		return xhttp.BadRequestError(msg).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.GatewayTimeoutError(msg).WithError(err)
	case errors.Is(err, models.ErrNoForecast),
		errors.Is(err, models.ErrNoDataAvailable),
		errors.Is(err, models.ErrInsufficientCurveData),
		errors.Is(err, models.ErrExcessiveLiquidityIssues),
		errors.Is(err, models.ErrProviderUnavailable),
		errors.Is(err, models.ErrContractNotFound):
		return xhttp.BadGatewayError(msg).WithError(err)
	default:
		return xhttp.InternalError(msg).WithError(err)
	}
}

var _ xhttp.Handler = (*ForecastEchoHandler)(nil)

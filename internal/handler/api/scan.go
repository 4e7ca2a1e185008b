package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "SqueezeScan/internal/domain/models"
	domrepo "SqueezeScan/internal/domain/repository"
	icache "SqueezeScan/internal/service/cache"
	"SqueezeScan/internal/service/metrics"
	"SqueezeScan/internal/service/ratelimit"
	"SqueezeScan/internal/usecase"
	xhttp "SqueezeScan/pkg/http"
	xlogger "SqueezeScan/pkg/logger"
)

const hotSectorsCacheTTL = 30 * time.Second

// ScanHandler implements Echo-based HTTP handlers following Clean Architecture.
type ScanHandler struct {
	logger  *xlogger.Logger
	scanner *usecase.Scanner
	stocks  *usecase.StockService
	reports *usecase.ReportService
	source  domrepo.MarketData
	cache   icache.BytesCache
	rl      *ratelimit.Limiter
}

func NewScanHandler(
	logger *xlogger.Logger,
	scanner *usecase.Scanner,
	stocks *usecase.StockService,
	reports *usecase.ReportService,
	source domrepo.MarketData,
) *ScanHandler {
	metrics.Register()
	return &ScanHandler{
		logger:  logger,
		scanner: scanner,
		stocks:  stocks,
		reports: reports,
		source:  source,
		rl:      ratelimit.New(),
	}
}

// SetCache installs an optional short-TTL response cache.
func (h *ScanHandler) SetCache(c icache.BytesCache) { h.cache = c }

// observe records endpoint latency on return.
func observe(endpoint string) func() {
	start := time.Now()
	return func() {
		metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func (h *ScanHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/scan/start", h.StartScan)
	g.POST("/scan/cancel", h.CancelScan)
	g.GET("/scan/status", h.ScanStatus)
	g.GET("/scan/results", h.ScanResults)
	g.GET("/scan/history", h.ScanHistory)
	g.DELETE("/scan/:id", h.DeleteScan)

	g.GET("/sectors/hot", h.HotSectors)
	g.GET("/stocks/:code", h.StockDetail)

	g.GET("/watchlist", h.Watchlist)
	g.POST("/watchlist", h.AddWatchlist)
	g.DELETE("/watchlist/:code", h.RemoveWatchlist)

	g.POST("/reports/generate", h.GenerateReport)
	g.GET("/reports", h.Reports)
	g.GET("/reports/:id", h.Report)
	g.DELETE("/reports/:id", h.DeleteReport)

	e.GET("/ws/scan", h.ScanSocket)
}

func (h *ScanHandler) StartScan(c echo.Context) error {
	defer observe("scan_start")()
	req := &models.StartScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	id, err := h.scanner.Start(c.Request().Context(), req.Params())
	if err != nil {
		if errors.Is(err, usecase.ErrScanRunning) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(
				"ERR_SCAN_RUNNING", "", "a scan is already running", http.StatusConflict))
		}
		metrics.APIErrors.WithLabelValues("scan_start").Inc()
		h.logger.Error("start scan error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, echo.Map{"scan_id": id})
}

func (h *ScanHandler) CancelScan(c echo.Context) error {
	if err := h.scanner.Cancel(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveScan) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("no scan running"))
		}
		h.logger.Error("cancel scan error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, h.scanner.Status())
}

func (h *ScanHandler) ScanStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.scanner.Status())
}

func (h *ScanHandler) ScanResults(c echo.Context) error {
	req := &models.ScanResultsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	detail, err := h.scanner.Results(c.Request().Context(), req.ScanID)
	if err != nil {
		metrics.APIErrors.WithLabelValues("scan_results").Inc()
		h.logger.Error("scan results error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if detail == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no scan results"))
	}
	return xhttp.SuccessResponse(c, detail)
}

func (h *ScanHandler) ScanHistory(c echo.Context) error {
	req := &models.ScanHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.scanner.History(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("scan history error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ScanHandler) DeleteScan(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("scan id required"))
	}
	if err := h.scanner.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, usecase.ErrScanActive) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(
				"ERR_SCAN_RUNNING", "", "scan is still running", http.StatusConflict))
		}
		h.logger.Error("delete scan error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *ScanHandler) HotSectors(c echo.Context) error {
	defer observe("sectors_hot")()

	const cacheKey = "api:sectors:hot"
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err == nil && ok {
			var rows []models.SectorInfo
			if json.Unmarshal(b, &rows) == nil {
				return xhttp.ListResponse(c, rows, int64(len(rows)))
			}
		}
	}

	sectors, err := h.source.HotSectors(c.Request().Context())
	if err != nil {
		metrics.APIErrors.WithLabelValues("sectors_hot").Inc()
		h.logger.Error("hot sectors error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("sector list unavailable").WithError(err))
	}

	if h.cache != nil {
		if b, err := json.Marshal(sectors); err == nil {
			if err := h.cache.SetBytes(cacheKey, b, hotSectorsCacheTTL); err != nil && h.logger != nil {
				h.logger.Warn("sector cache write failed", xlogger.Error(err))
			}
		}
	}
	return xhttp.ListResponse(c, sectors, int64(len(sectors)))
}

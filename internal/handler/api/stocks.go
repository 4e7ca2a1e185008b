package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	models "SqueezeScan/internal/domain/models"
	"SqueezeScan/internal/service/metrics"
	"SqueezeScan/internal/usecase"
	xhttp "SqueezeScan/pkg/http"
	xlogger "SqueezeScan/pkg/logger"
)

func (h *ScanHandler) StockDetail(c echo.Context) error {
	defer observe("stock_detail")()
	code := c.Param("code")
	if code == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("stock code required"))
	}
	// Each uncached detail request costs a provider call.
	if !h.rl.Allow(c.RealIP()+":detail", 5, 2) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError(
			"ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests))
	}

	detail, err := h.stocks.Detail(c.Request().Context(), code)
	if err != nil {
		if errors.Is(err, usecase.ErrInsufficientHistory) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("not enough history for %s", code))
		}
		metrics.APIErrors.WithLabelValues("stock_detail").Inc()
		h.logger.Error("stock detail error", xlogger.String("code", code), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("stock detail unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, detail)
}

func (h *ScanHandler) Watchlist(c echo.Context) error {
	rows, err := h.stocks.Watchlist(c.Request().Context())
	if err != nil {
		h.logger.Error("watchlist error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ScanHandler) AddWatchlist(c echo.Context) error {
	req := &models.AddWatchlistRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	entry := models.WatchlistEntry{
		Code:   req.Code,
		Name:   req.Name,
		Sector: req.Sector,
		Note:   req.Note,
	}
	if err := h.stocks.AddWatchlist(c.Request().Context(), entry); err != nil {
		h.logger.Error("add watchlist error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, entry)
}

func (h *ScanHandler) RemoveWatchlist(c echo.Context) error {
	code := c.Param("code")
	if code == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("stock code required"))
	}
	if err := h.stocks.RemoveWatchlist(c.Request().Context(), code); err != nil {
		h.logger.Error("remove watchlist error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

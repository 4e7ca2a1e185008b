package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	models "SqueezeScan/internal/domain/models"
	"SqueezeScan/internal/service/llm"
	"SqueezeScan/internal/service/metrics"
	"SqueezeScan/internal/usecase"
	xhttp "SqueezeScan/pkg/http"
	xlogger "SqueezeScan/pkg/logger"
)

func (h *ScanHandler) GenerateReport(c echo.Context) error {
	defer observe("report_generate")()
	req := &models.GenerateReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// LLM calls are slow and metered.
	if !h.rl.Allow(c.RealIP()+":report", 2, 0.2) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError(
			"ERR_RATE_LIMITED", "", "too many requests", http.StatusTooManyRequests))
	}

	rep, err := h.reports.Generate(c.Request().Context(), req.ScanID)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrNotConfigured):
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(
				"ERR_LLM_UNCONFIGURED", "", "report generation is not configured", http.StatusServiceUnavailable))
		case errors.Is(err, usecase.ErrNoScanResults):
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no completed scan to analyze"))
		default:
			metrics.APIErrors.WithLabelValues("report_generate").Inc()
			h.logger.Error("generate report error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("report generation failed").WithError(err))
		}
	}
	return xhttp.CreatedResponse(c, rep)
}

func (h *ScanHandler) Reports(c echo.Context) error {
	req := &models.ReportListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.reports.List(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("list reports error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ScanHandler) Report(c echo.Context) error {
	id := c.Param("id")
	rep, err := h.reports.Get(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("get report error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if rep == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("report %s not found", id))
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *ScanHandler) DeleteReport(c echo.Context) error {
	id := c.Param("id")
	if err := h.reports.Delete(c.Request().Context(), id); err != nil {
		h.logger.Error("delete report error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

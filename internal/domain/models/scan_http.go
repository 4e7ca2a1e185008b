package models

// Requests for the scan HTTP endpoints. Defined in domain for consistency and reuse.

type StartScanRequest struct {
	Sectors        int `json:"sectors" default:"5" validate:"gte=1,lte=50"`
	MinSqueezeDays int `json:"min_days" default:"3" validate:"gte=1,lte=30"`
	Period         int `json:"period" default:"20" validate:"gte=5,lte=120"`
}

// Params converts the request into clamped scan parameters.
func (r StartScanRequest) Params() ScanParams {
	return ScanParams{
		Sectors:        r.Sectors,
		MinSqueezeDays: r.MinSqueezeDays,
		Period:         r.Period,
	}.Clamp()
}

type ScanResultsRequest struct {
	ScanID string `query:"scan_id" json:"scan_id"`
}

type ScanHistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=100"`
}

type AddWatchlistRequest struct {
	Code   string `json:"code" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Sector string `json:"sector"`
	Note   string `json:"note"`
}

type GenerateReportRequest struct {
	ScanID string `json:"scan_id"` // empty = latest completed scan
}

type ReportListRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=100"`
}

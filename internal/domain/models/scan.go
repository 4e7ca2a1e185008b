package models

import "time"

// ScanStatus is the lifecycle state of a scan run.
type ScanStatus string

const (
	ScanStatusScanning  ScanStatus = "scanning"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusError     ScanStatus = "error"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusError || s == ScanStatusCancelled
}

// ScanParams are the accepted scan inputs, clamped at acceptance time.
type ScanParams struct {
	Sectors        int `json:"sectors"`
	MinSqueezeDays int `json:"min_days"`
	Period         int `json:"period"`
}

// Clamp limits each parameter to its accepted range.
func (p ScanParams) Clamp() ScanParams {
	clampInt := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return ScanParams{
		Sectors:        clampInt(p.Sectors, 1, 20),
		MinSqueezeDays: clampInt(p.MinSqueezeDays, 1, 10),
		Period:         clampInt(p.Period, 10, 60),
	}
}

// ScanRecord is one scan execution. It has a single writer (the scan
// goroutine); everyone else reads copies.
type ScanRecord struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Status       ScanStatus   `json:"status"`
	Progress     int          `json:"progress"` // 0..100, monotonic
	CurrentPhase string       `json:"current_phase"`
	Error        string       `json:"error,omitempty"`
	Params       ScanParams   `json:"params"`
	HotSectors   []SectorInfo `json:"hot_sectors,omitempty"`
}

// Snapshot returns a deep copy safe to hand to readers.
func (r *ScanRecord) Snapshot() ScanRecord {
	cp := *r
	if r.HotSectors != nil {
		cp.HotSectors = make([]SectorInfo, len(r.HotSectors))
		copy(cp.HotSectors, r.HotSectors)
	}
	return cp
}

// ScanSummary is one row of the scan history listing.
type ScanSummary struct {
	ID          string       `json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	Status      ScanStatus   `json:"status"`
	Progress    int          `json:"progress"`
	Error       string       `json:"error,omitempty"`
	Params      ScanParams   `json:"params"`
	HotSectors  []SectorInfo `json:"hot_sectors,omitempty"`
	SectorCount int          `json:"sector_count"`
	StockCount  int          `json:"stock_count"`
}

// SectorResult groups the qualifying stocks of one sector, ordered by
// descending composite score.
type SectorResult struct {
	ScanID     string        `json:"scan_id"`
	SectorName string        `json:"sector_name"`
	ChangePct  float64       `json:"change"`
	Stocks     []StockResult `json:"stocks"`
}

// ScanDetail is a scan record with its grouped sector results.
type ScanDetail struct {
	ScanRecord
	Results []SectorResult `json:"results"`
}

// ScanStatusView is the polling shape exposed by the API.
type ScanStatusView struct {
	IsScanning   bool       `json:"is_scanning"`
	ScanID       string     `json:"scan_id,omitempty"`
	Status       ScanStatus `json:"status,omitempty"`
	Progress     int        `json:"progress"`
	CurrentPhase string     `json:"current_phase"`
	Error        string     `json:"error,omitempty"`
	Cancelled    bool       `json:"cancelled"`
}

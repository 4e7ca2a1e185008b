package models

import "time"

// WatchlistEntry is a user-saved symbol. Code is unique; adding an
// existing code overwrites the entry.
type WatchlistEntry struct {
	Code    string    `json:"code"`
	Name    string    `json:"name"`
	Sector  string    `json:"sector,omitempty"`
	AddedAt time.Time `json:"added_at"`
	Note    string    `json:"note,omitempty"`
}

// AIReport is a persisted LLM narrative over a completed scan.
type AIReport struct {
	ID          string    `json:"id"`
	ScanID      string    `json:"scan_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Model       string    `json:"model"`
	TokensUsed  int       `json:"tokens_used"`
	NewsDigest  string    `json:"news_digest,omitempty"`
	ScanSummary string    `json:"scan_summary,omitempty"`
	Analysis    string    `json:"analysis"`
}

// StockDetail is the charting payload for a single symbol: the evaluated
// series after indicator warm-up, trimmed to the most recent rows.
type StockDetail struct {
	Code     string    `json:"code"`
	Dates    []string  `json:"dates"`
	Bars     []Bar     `json:"candles"`
	BBUpper  []float64 `json:"bb_upper"`
	BBMiddle []float64 `json:"bb_middle"`
	BBLower  []float64 `json:"bb_lower"`
	WidthPct []float64 `json:"bb_width"`
	WidthMAShort []float64 `json:"width_ma_short"`
	WidthMALong  []float64 `json:"width_ma_long"`
}

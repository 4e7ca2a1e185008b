package models

// Bar is one daily OHLCV row for a stock, ascending by date.
type Bar struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	Amount      float64 `json:"amount"`
	PctChange   float64 `json:"pct_change"`
	TurnoverPct float64 `json:"turnover"`
}

// SectorInfo is one row of the ranked industry board list.
type SectorInfo struct {
	Name            string  `json:"name"`
	Code            string  `json:"code"`
	ChangePct       float64 `json:"change"`
	Leader          string  `json:"leader,omitempty"`
	LeaderChangePct float64 `json:"leader_change,omitempty"`
}

// ConstituentInfo is one member of a sector board.
type ConstituentInfo struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	MarketCap  float64 `json:"market_cap"`
	ChangePct  float64 `json:"change,omitempty"`
	IsLeader   bool    `json:"is_leader"`
	LeaderRank int     `json:"leader_rank"` // 1..3 for the largest caps, 0 otherwise
}

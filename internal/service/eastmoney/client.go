package eastmoney

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"SqueezeScan/internal/domain/models"
	phttp "SqueezeScan/pkg/http"
	applogger "SqueezeScan/pkg/logger"
	"SqueezeScan/pkg/retry"
	"SqueezeScan/pkg/util"
)

// clist field codes for industry boards and their constituents.
const (
	boardFields       = "f2,f3,f12,f14,f128,f136"
	constituentFields = "f2,f3,f12,f14,f20"
	klineFields       = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"

	leaderCount = 3
)

// Options configures the provider client.
type Options struct {
	BoardURL  string
	KlineURL  string
	UserAgent string
	PageSize  int
	Retry     retry.Options
}

// Client implements MarketData against the eastmoney quote API.
type Client struct {
	http *phttp.Client
	opts Options
	l    *applogger.Logger
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

// New creates a provider client. httpClient carries the call timeout.
func New(httpClient *phttp.Client, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultOptions()
	}
	return &Client{http: httpClient, opts: opts}
}

type clistResponse struct {
	Data struct {
		Total int              `json:"total"`
		Diff  []map[string]any `json:"diff"`
	} `json:"data"`
}

type klineResponse struct {
	Data struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// HotSectors returns industry boards sorted descending by change%.
func (c *Client) HotSectors(ctx context.Context) ([]models.SectorInfo, error) {
	resp, err := retry.Do(ctx, func() (*clistResponse, error) {
		return c.clist(ctx, map[string][]string{
			"fs":     {"m:90+t:2+f:!50"},
			"fid":    {"f3"},
			"po":     {"1"},
			"pn":     {"1"},
			"pz":     {strconv.Itoa(c.opts.PageSize)},
			"fields": {boardFields},
		})
	}, c.opts.Retry)
	if err != nil {
		return nil, fmt.Errorf("fetch sector list: %w", err)
	}

	sectors := make([]models.SectorInfo, 0, len(resp.Data.Diff))
	for _, row := range resp.Data.Diff {
		s := models.SectorInfo{
			Name:            asString(row["f14"]),
			Code:            asString(row["f12"]),
			ChangePct:       asFloat(row["f3"]),
			Leader:          asString(row["f128"]),
			LeaderChangePct: asFloat(row["f136"]),
		}
		if s.Name == "" || s.Code == "" {
			continue
		}
		sectors = append(sectors, s)
	}
	sort.SliceStable(sectors, func(i, j int) bool {
		return sectors[i].ChangePct > sectors[j].ChangePct
	})
	return sectors, nil
}

// Constituents returns the members of one board with the top market
// caps flagged as sector leaders.
func (c *Client) Constituents(ctx context.Context, sector models.SectorInfo) ([]models.ConstituentInfo, error) {
	resp, err := retry.Do(ctx, func() (*clistResponse, error) {
		return c.clist(ctx, map[string][]string{
			"fs":     {"b:" + sector.Code},
			"fid":    {"f20"},
			"po":     {"1"},
			"pn":     {"1"},
			"pz":     {strconv.Itoa(c.opts.PageSize)},
			"fields": {constituentFields},
		})
	}, c.opts.Retry)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents of %s: %w", sector.Name, err)
	}

	rows := make([]models.ConstituentInfo, 0, len(resp.Data.Diff))
	for _, row := range resp.Data.Diff {
		ci := models.ConstituentInfo{
			Code:      asString(row["f12"]),
			Name:      asString(row["f14"]),
			ChangePct: asFloat(row["f3"]),
			MarketCap: asFloat(row["f20"]),
		}
		if ci.Code == "" {
			continue
		}
		rows = append(rows, ci)
	}
	markLeaders(rows)
	return rows, nil
}

// DailyBars returns daily OHLCV rows ascending by date. Unparseable
// numeric fields default to zero rather than failing the row.
func (c *Client) DailyBars(ctx context.Context, code string, lookbackDays int) ([]models.Bar, error) {
	resp, err := retry.Do(ctx, func() (*klineResponse, error) {
		var out klineResponse
		err := c.http.SendAndParse(ctx, &phttp.RequestOptions{
			Method:  phttp.MethodGet,
			URL:     c.opts.KlineURL,
			Headers: c.headers(),
			QueryParams: map[string][]string{
				"secid":   {secID(code)},
				"klt":     {"101"}, // daily
				"fqt":     {"1"},  // forward adjusted
				"lmt":     {strconv.Itoa(lookbackDays)},
				"end":     {"20500101"},
				"fields1": {"f1,f2,f3,f4,f5,f6"},
				"fields2": {klineFields},
			},
		}, &out)
		if err != nil {
			return nil, err
		}
		return &out, nil
	}, c.opts.Retry)
	if err != nil {
		return nil, fmt.Errorf("fetch series %s: %w", code, err)
	}

	bars := make([]models.Bar, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		b, ok := parseKline(line)
		if !ok {
			if c.l != nil {
				c.l.Debug("skipping malformed kline row",
					applogger.String("code", code),
					applogger.String("row", line),
				)
			}
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func (c *Client) clist(ctx context.Context, params map[string][]string) (*clistResponse, error) {
	var out clistResponse
	err := c.http.SendAndParse(ctx, &phttp.RequestOptions{
		Method:      phttp.MethodGet,
		URL:         c.opts.BoardURL,
		Headers:     c.headers(),
		QueryParams: params,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if c.opts.UserAgent != "" {
		h["User-Agent"] = c.opts.UserAgent
	}
	return h
}

// parseKline splits one "date,open,close,high,low,volume,amount,
// amplitude,pct_change,change,turnover" row.
func parseKline(line string) (models.Bar, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 11 || parts[0] == "" {
		return models.Bar{}, false
	}
	return models.Bar{
		Date:        parts[0],
		Open:        lenientFloat(parts[1]),
		Close:       lenientFloat(parts[2]),
		High:        lenientFloat(parts[3]),
		Low:         lenientFloat(parts[4]),
		Volume:      lenientFloat(parts[5]),
		Amount:      lenientFloat(parts[6]),
		PctChange:   lenientFloat(parts[8]),
		TurnoverPct: lenientFloat(parts[10]),
	}, true
}

// markLeaders flags the top market caps, keeping discovery order.
func markLeaders(rows []models.ConstituentInfo) {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return rows[idx[a]].MarketCap > rows[idx[b]].MarketCap
	})
	for rank, i := range idx {
		if rank >= leaderCount || rows[i].MarketCap <= 0 {
			break
		}
		rows[i].IsLeader = true
		rows[i].LeaderRank = rank + 1
	}
}

// secID maps a bare symbol to the provider's exchange-prefixed id.
func secID(code string) string {
	switch {
	case strings.HasPrefix(code, "6"), strings.HasPrefix(code, "9"), strings.HasPrefix(code, "5"):
		return "1." + code
	default:
		return "0." + code
	}
}

func asString(v any) string {
	s, _ := v.(string)
	if s == "-" {
		return ""
	}
	return s
}

// asFloat reads a numeric field that the provider sometimes sends as a
// string or as "-" for suspended symbols.
func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return lenientFloat(t)
	default:
		return 0
	}
}

func lenientFloat(s string) float64 {
	return util.ParseFloatDefault(strings.TrimSpace(s), 0)
}

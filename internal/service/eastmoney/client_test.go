package eastmoney

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"SqueezeScan/internal/domain/models"
	phttp "SqueezeScan/pkg/http"
	"SqueezeScan/pkg/retry"
)

func sectorForTest() models.SectorInfo {
	return models.SectorInfo{Name: "semis", Code: "BK1036"}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(phttp.NewClient(phttp.WithTimeout(2*time.Second)), Options{
		BoardURL: srv.URL + "/clist",
		KlineURL: srv.URL + "/kline",
		PageSize: 50,
		Retry:    retry.Options{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})
	return c, srv
}

func TestHotSectorsSortedAndFiltered(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"total":3,"diff":[
			{"f12":"BK0475","f14":"banking","f3":1.2,"f128":"600036","f136":2.0},
			{"f12":"BK1036","f14":"semis","f3":4.5,"f128":"688981","f136":9.9},
			{"f12":"","f14":"broken","f3":9.0}
		]}}`)
	})

	sectors, err := c.HotSectors(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sectors) != 2 {
		t.Fatalf("expected 2 sectors, got %d", len(sectors))
	}
	if sectors[0].Name != "semis" || sectors[1].Name != "banking" {
		t.Fatalf("not sorted by change%%: %+v", sectors)
	}
	if sectors[0].Leader != "688981" || sectors[0].LeaderChangePct != 9.9 {
		t.Fatalf("leader fields lost: %+v", sectors[0])
	}
}

func TestHotSectorsRetriesThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(phttp.NewClient(phttp.WithTimeout(time.Second)), Options{
		BoardURL: srv.URL,
		KlineURL: srv.URL,
		Retry:    retry.Options{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})

	_, err := c.HotSectors(context.Background())
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestConstituentsMarksLeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"total":4,"diff":[
			{"f12":"000001","f14":"a","f3":1.0,"f20":500},
			{"f12":"000002","f14":"b","f3":"-","f20":900},
			{"f12":"000003","f14":"c","f3":2.0,"f20":100},
			{"f12":"000004","f14":"d","f3":3.0,"f20":700}
		]}}`)
	})

	rows, err := c.Constituents(context.Background(), sectorForTest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	// Discovery order preserved, top-3 caps flagged 1..3.
	wantRanks := map[string]int{"000002": 1, "000004": 2, "000001": 3, "000003": 0}
	for _, r := range rows {
		if r.LeaderRank != wantRanks[r.Code] {
			t.Errorf("%s: rank %d, want %d", r.Code, r.LeaderRank, wantRanks[r.Code])
		}
		if (r.LeaderRank > 0) != r.IsLeader {
			t.Errorf("%s: IsLeader inconsistent with rank %d", r.Code, r.LeaderRank)
		}
	}
	// Suspended symbol's "-" change parses to zero, not an error.
	if rows[1].ChangePct != 0 {
		t.Errorf("expected lenient zero for suspended change, got %v", rows[1].ChangePct)
	}
}

func TestDailyBarsParsesAndSkipsMalformed(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("secid"); got != "1.600519" {
			t.Errorf("unexpected secid %q", got)
		}
		fmt.Fprint(w, `{"data":{"code":"600519","klines":[
			"2026-08-26,10.0,10.5,10.8,9.9,12000,126000,8.9,5.0,0.5,3.2",
			"garbage",
			"2026-08-27,10.5,10.2,10.6,10.1,9000,92000,4.8,-2.86,-0.3,2.4"
		]}}`)
	})

	bars, err := c.DailyBars(context.Background(), "600519", 120)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	b := bars[0]
	if b.Date != "2026-08-26" || b.Close != 10.5 || b.High != 10.8 || b.Low != 9.9 {
		t.Fatalf("bad parse: %+v", b)
	}
	if b.PctChange != 5.0 || b.TurnoverPct != 3.2 {
		t.Fatalf("pct/turnover misplaced: %+v", b)
	}
	if bars[1].PctChange != -2.86 {
		t.Fatalf("expected -2.86, got %v", bars[1].PctChange)
	}
}

func TestSecID(t *testing.T) {
	cases := map[string]string{
		"600519": "1.600519",
		"688981": "1.688981",
		"510300": "1.510300",
		"000001": "0.000001",
		"300750": "0.300750",
	}
	for code, want := range cases {
		if got := secID(code); got != want {
			t.Errorf("secID(%s) = %s, want %s", code, got, want)
		}
	}
}

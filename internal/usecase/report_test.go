package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SqueezeScan/internal/domain/models"
	"SqueezeScan/internal/service/llm"
	phttp "SqueezeScan/pkg/http"
)

// reportStore wraps memStore with a canned latest-completed scan.
type reportStore struct {
	memStore
	latest  *models.ScanDetail
	reports []models.AIReport
}

func (s *reportStore) LatestCompleted(context.Context) (*models.ScanDetail, error) {
	return s.latest, nil
}

func (s *reportStore) ScanDetail(_ context.Context, id string) (*models.ScanDetail, error) {
	if s.latest != nil && s.latest.ID == id {
		return s.latest, nil
	}
	return nil, nil
}

func (s *reportStore) SaveReport(_ context.Context, r models.AIReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func completedDetail() *models.ScanDetail {
	return &models.ScanDetail{
		ScanRecord: models.ScanRecord{
			ID:        "scan-1",
			Status:    models.ScanStatusCompleted,
			UpdatedAt: time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC),
		},
		Results: []models.SectorResult{
			{
				SectorName: "semis", ChangePct: 4.2,
				Stocks: []models.StockResult{
					{Code: "688981", Name: "star board", Score: 90, Grade: "S"},
					{Code: "600584", Name: "mainboard sh", Score: 70, Grade: "A", Tags: []string{"A-tier"}},
				},
			},
			{
				SectorName: "banking", ChangePct: 2.1,
				Stocks: []models.StockResult{
					{Code: "000001", Name: "mainboard sz", Score: 55, Grade: "B"},
					{Code: "300750", Name: "chinext", Score: 80, Grade: "S"},
				},
			},
		},
	}
}

func TestGenerateReportPersistsAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"model":"hunyuan-lite",
			"choices":[{"message":{"role":"assistant","content":"watch the sh mainboard"},"finish_reason":"stop"}],
			"usage":{"total_tokens":321}
		}`)
	}))
	defer srv.Close()

	store := &reportStore{latest: completedDetail()}
	svc := NewReportService(store, llm.New(phttp.NewClient(), llm.Options{
		Endpoint: srv.URL, APIKey: "k", Model: "hunyuan-lite",
	}))

	rep, err := svc.Generate(context.Background(), "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rep.ScanID != "scan-1" || rep.Analysis != "watch the sh mainboard" || rep.TokensUsed != 321 {
		t.Fatalf("bad report: %+v", rep)
	}
	store.mu.Lock()
	saved := len(store.reports)
	store.mu.Unlock()
	if saved != 1 {
		t.Fatalf("expected 1 persisted report, got %d", saved)
	}
}

func TestGenerateReportNoResults(t *testing.T) {
	store := &reportStore{}
	svc := NewReportService(store, llm.New(phttp.NewClient(), llm.Options{
		Endpoint: "http://localhost:0", APIKey: "k", Model: "m",
	}))
	if _, err := svc.Generate(context.Background(), ""); !errors.Is(err, ErrNoScanResults) {
		t.Fatalf("expected ErrNoScanResults, got %v", err)
	}
}

func TestScanDigestFiltersAndRanks(t *testing.T) {
	got := scanDigest(completedDetail())

	if strings.Contains(got, "688981") || strings.Contains(got, "300750") {
		t.Fatalf("digest must exclude STAR/ChiNext codes:\n%s", got)
	}
	shIdx := strings.Index(got, "600584")
	szIdx := strings.Index(got, "000001")
	if shIdx < 0 || szIdx < 0 {
		t.Fatalf("digest missing main-board codes:\n%s", got)
	}
	if shIdx > szIdx {
		t.Fatalf("candidates must be ranked by score:\n%s", got)
	}
	if !strings.Contains(got, "2 sectors, 4 qualifying stocks") {
		t.Fatalf("digest header wrong:\n%s", got)
	}
	if !strings.Contains(got, "A-tier") {
		t.Fatalf("digest must carry tags:\n%s", got)
	}
}

func TestMainBoard(t *testing.T) {
	cases := map[string]bool{
		"600519": true,
		"000001": true,
		"002594": true,
		"688981": false,
		"300750": false,
	}
	for code, want := range cases {
		if got := mainBoard(code); got != want {
			t.Errorf("mainBoard(%s) = %v, want %v", code, got, want)
		}
	}
}

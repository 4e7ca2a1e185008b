package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"SqueezeScan/internal/domain/models"
	drepo "SqueezeScan/internal/domain/repository"
	"SqueezeScan/internal/service/llm"
	applogger "SqueezeScan/pkg/logger"
)

// ErrNoScanResults is returned when report generation finds no
// completed scan to analyze.
var ErrNoScanResults = errors.New("no completed scan results available")

const (
	reportCandidates = 15

	reportSystemPrompt = "You are a seasoned A-share market analyst. You receive the " +
		"output of a Bollinger Band squeeze scanner: sectors ranked by daily change and " +
		"their member stocks scored on squeeze tightness, trend, momentum, volume and " +
		"popularity. Write a concise pre-breakout watch report: call out the most " +
		"promising setups, group them by sector, and note the key risk for each. " +
		"Do not give buy or sell advice."
)

// ReportService turns a completed scan into a persisted LLM narrative.
type ReportService struct {
	store drepo.ResultStore
	llm   *llm.Client
	l     *applogger.Logger

	newID func() string
	now   func() time.Time
}

func NewReportService(store drepo.ResultStore, client *llm.Client) *ReportService {
	return &ReportService{
		store: store,
		llm:   client,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// SetLogger injects a structured logger.
func (s *ReportService) SetLogger(l *applogger.Logger) { s.l = l }

// Configured reports whether report generation is available.
func (s *ReportService) Configured() bool { return s.llm != nil && s.llm.Configured() }

// Generate builds a report over the given scan, or the latest completed
// one when scanID is empty, and persists it.
func (s *ReportService) Generate(ctx context.Context, scanID string) (*models.AIReport, error) {
	if !s.Configured() {
		return nil, llm.ErrNotConfigured
	}

	var (
		detail *models.ScanDetail
		err    error
	)
	if scanID == "" {
		detail, err = s.store.LatestCompleted(ctx)
	} else {
		detail, err = s.store.ScanDetail(ctx, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("load scan: %w", err)
	}
	if detail == nil || len(detail.Results) == 0 {
		return nil, ErrNoScanResults
	}

	summary := scanDigest(detail)
	res, err := s.llm.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: reportSystemPrompt},
		{Role: "user", Content: summary},
	})
	if err != nil {
		return nil, err
	}

	report := models.AIReport{
		ID:          s.newID(),
		ScanID:      detail.ID,
		CreatedAt:   s.now(),
		Model:       res.Model,
		TokensUsed:  res.TokensUsed,
		ScanSummary: summary,
		Analysis:    res.Content,
	}
	if err := s.store.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	if s.l != nil {
		s.l.Info("report generated",
			applogger.String("report_id", report.ID),
			applogger.String("scan_id", report.ScanID),
			applogger.Int("tokens", report.TokensUsed))
	}
	return &report, nil
}

func (s *ReportService) List(ctx context.Context, limit int) ([]models.AIReport, error) {
	return s.store.Reports(ctx, limit)
}

func (s *ReportService) Get(ctx context.Context, id string) (*models.AIReport, error) {
	return s.store.Report(ctx, id)
}

func (s *ReportService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteReport(ctx, id)
}

// scanDigest flattens a scan into the prompt payload: main-board
// symbols only, top candidates by score, grouped facts per line.
func scanDigest(detail *models.ScanDetail) string {
	type candidate struct {
		stock  models.StockResult
		sector string
	}
	var all []candidate
	total := 0
	for _, grp := range detail.Results {
		total += len(grp.Stocks)
		for _, stk := range grp.Stocks {
			if !mainBoard(stk.Code) {
				continue
			}
			all = append(all, candidate{stock: stk, sector: grp.SectorName})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].stock.Score > all[j].stock.Score })
	if len(all) > reportCandidates {
		all = all[:reportCandidates]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scan %s finished %s: %d sectors, %d qualifying stocks.\n",
		detail.ID, detail.UpdatedAt.Format("2006-01-02 15:04"), len(detail.Results), total)
	b.WriteString("Sectors by daily change:\n")
	for _, grp := range detail.Results {
		fmt.Fprintf(&b, "- %s %+.2f%% (%d stocks)\n", grp.SectorName, grp.ChangePct, len(grp.Stocks))
	}
	fmt.Fprintf(&b, "Top %d main-board candidates:\n", len(all))
	for _, c := range all {
		stk := c.stock
		fmt.Fprintf(&b, "- %s %s [%s] score %d (%s), squeeze %dd ratio %.1f%%, vol ratio %.2f, turnover %.2f%%",
			stk.Code, stk.Name, c.sector, stk.Score, stk.Grade,
			stk.SqueezeDays, stk.SqueezeRatio, stk.VolumeRatio, stk.TurnoverPct)
		if len(stk.Tags) > 0 {
			fmt.Fprintf(&b, ", tags: %s", strings.Join(stk.Tags, " / "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// mainBoard keeps Shanghai/Shenzhen main-board codes and drops the
// ChiNext/STAR boards the report deliberately ignores.
func mainBoard(code string) bool {
	return strings.HasPrefix(code, "60") || strings.HasPrefix(code, "00")
}

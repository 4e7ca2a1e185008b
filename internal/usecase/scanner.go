package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"SqueezeScan/internal/domain/models"
	drepo "SqueezeScan/internal/domain/repository"
	"SqueezeScan/internal/indicator"
	"SqueezeScan/internal/service/ratelimit"
	applogger "SqueezeScan/pkg/logger"
	"SqueezeScan/pkg/queue"
)

var (
	// ErrScanRunning rejects a second concurrent start.
	ErrScanRunning = errors.New("scan already running")
	// ErrNoActiveScan rejects cancel with nothing to cancel.
	ErrNoActiveScan = errors.New("no scan running")
	// ErrScanActive rejects deleting the scan in progress.
	ErrScanActive = errors.New("scan is still running")
)

const persistTimeout = 10 * time.Second

// ScannerConfig tunes the acquisition pipeline. Scan parameters are
// not configured here; they arrive per request and are clamped by
// models.ScanParams.
type ScannerConfig struct {
	Workers          int
	MinFetchInterval time.Duration
	FetchJitter      time.Duration
	LookbackDays     int
}

// Scanner owns the scan lifecycle. Exactly one scan runs at a time;
// the run goroutine is the only writer of the live record and every
// other caller reads snapshots.
type Scanner struct {
	cfg     ScannerConfig
	source  drepo.MarketData
	cache   drepo.MarketCache
	store   drepo.ResultStore
	events  drepo.EventPublisher
	metrics drepo.Metrics
	l       *applogger.Logger

	newID func() string
	now   func() time.Time

	mu        sync.Mutex
	current   *models.ScanRecord
	running   bool
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}

	subMu  sync.Mutex
	subSeq int
	subs   map[int]chan models.ScanStatusView
}

func NewScanner(
	cfg ScannerConfig,
	source drepo.MarketData,
	cache drepo.MarketCache,
	store drepo.ResultStore,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 120
	}
	return &Scanner{
		cfg:     cfg,
		source:  source,
		cache:   cache,
		store:   store,
		events:  events,
		metrics: metrics,
		newID:   uuid.NewString,
		now:     time.Now,
		subs:    make(map[int]chan models.ScanStatusView),
	}
}

// SetLogger injects a structured logger.
func (s *Scanner) SetLogger(l *applogger.Logger) { s.l = l }

// Start validates params, creates the record and launches the run in
// the background. Returns the scan id immediately.
func (s *Scanner) Start(ctx context.Context, params models.ScanParams) (string, error) {
	params = params.Clamp()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrScanRunning
	}

	rec := models.ScanRecord{
		ID:           s.newID(),
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
		Status:       models.ScanStatusScanning,
		Progress:     0,
		CurrentPhase: "initializing",
		Params:       params,
	}
	s.current = &rec
	s.running = true
	s.cancelled = false
	s.done = make(chan struct{})
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.store.CreateScan(ctx, rec); err != nil {
		s.mu.Lock()
		s.running = false
		s.current = nil
		close(s.done)
		s.mu.Unlock()
		cancel()
		return "", fmt.Errorf("create scan: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordScanStarted()
	}
	_ = s.events.PublishScanEvent(ctx, "started", rec)

	go s.run(runCtx, params)
	return rec.ID, nil
}

// Cancel requests cooperative cancellation of the running scan. The
// run loop observes it at the next phase boundary.
func (s *Scanner) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNoActiveScan
	}
	s.cancelled = true
	s.cancel()
	return nil
}

// Status returns an immutable snapshot for polling.
func (s *Scanner) Status() models.ScanStatusView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scanner) statusLocked() models.ScanStatusView {
	if s.current == nil {
		return models.ScanStatusView{}
	}
	rec := s.current.Snapshot()
	return models.ScanStatusView{
		IsScanning:   s.running,
		ScanID:       rec.ID,
		Status:       rec.Status,
		Progress:     rec.Progress,
		CurrentPhase: rec.CurrentPhase,
		Error:        rec.Error,
		Cancelled:    s.cancelled,
	}
}

// Results returns a scan with grouped sector results; empty scanID
// means the latest completed scan. Nil when nothing matches.
func (s *Scanner) Results(ctx context.Context, scanID string) (*models.ScanDetail, error) {
	if scanID == "" {
		return s.store.LatestCompleted(ctx)
	}
	return s.store.ScanDetail(ctx, scanID)
}

func (s *Scanner) History(ctx context.Context, limit int) ([]models.ScanSummary, error) {
	return s.store.ScanHistory(ctx, limit)
}

// Delete removes a finished scan; the running one is protected.
func (s *Scanner) Delete(ctx context.Context, scanID string) error {
	s.mu.Lock()
	if s.running && s.current != nil && s.current.ID == scanID {
		s.mu.Unlock()
		return ErrScanActive
	}
	s.mu.Unlock()
	return s.store.DeleteScan(ctx, scanID)
}

// Subscribe registers a live status feed for push consumers. Slow
// receivers miss intermediate updates rather than block the scan.
func (s *Scanner) Subscribe() (<-chan models.ScanStatusView, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subSeq++
	id := s.subSeq
	ch := make(chan models.ScanStatusView, 8)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Scanner) notify() {
	s.mu.Lock()
	view := s.statusLocked()
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- view:
		default:
		}
	}
}

// symbolClaim carries a symbol's owning sector and its metadata.
type symbolClaim struct {
	info   models.ConstituentInfo
	sector models.SectorInfo
	order  int // discovery order, the stable tie-break
}

func (s *Scanner) run(ctx context.Context, params models.ScanParams) {
	started := s.now()
	defer func() {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		close(done)
	}()

	engine := indicator.NewEngine(indicator.Config{Period: params.Period})

	s.setPhase(5, "fetching hot sector list")
	sectors, err := s.source.HotSectors(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordFetchError("sectors")
		}
		s.finish(models.ScanStatusError, fmt.Sprintf("sector list unavailable: %v", err), started)
		return
	}
	if len(sectors) > params.Sectors {
		sectors = sectors[:params.Sectors]
	}
	if len(sectors) == 0 {
		s.finish(models.ScanStatusError, "sector list empty", started)
		return
	}

	s.mu.Lock()
	s.current.HotSectors = append([]models.SectorInfo(nil), sectors...)
	s.mu.Unlock()
	s.persistProgress()

	pool := queue.NewPool(queue.PoolConfig{Workers: s.cfg.Workers, QueueSize: s.cfg.Workers * 4})
	pool.SetLogger(s.l)
	pool.Start(ctx)
	defer pool.Stop()
	pacer := ratelimit.NewPacer(s.cfg.MinFetchInterval, s.cfg.FetchJitter)

	claimed := make(map[string]bool)
	scanned := 0

	// Per-sector pipeline: constituents, series, scoring, persistence.
	// A sector is written before the next one starts, so cancellation
	// never leaves a half-written sector behind.
	const spanStart, spanEnd = 10, 95
	for i, sector := range sectors {
		if s.isCancelled(ctx) {
			s.finish(models.ScanStatusCancelled, "", started)
			return
		}

		base := spanStart + (spanEnd-spanStart)*i/len(sectors)
		next := spanStart + (spanEnd-spanStart)*(i+1)/len(sectors)
		s.setPhase(base, fmt.Sprintf("scanning sector %s (%d/%d)", sector.Name, i+1, len(sectors)))

		symbols := s.resolveConstituents(ctx, sector, claimed, i)
		if len(symbols) == 0 {
			continue
		}

		series := s.resolveSeries(ctx, pool, pacer, symbols, base, next)
		if s.isCancelled(ctx) {
			s.finish(models.ScanStatusCancelled, "", started)
			return
		}

		results := s.scoreSector(engine, params, symbols, series)
		scanned += len(series)
		if s.metrics != nil {
			s.metrics.RecordSymbolsScanned(len(series))
		}

		if len(results) > 0 {
			res := models.SectorResult{
				ScanID:     s.scanID(),
				SectorName: sector.Name,
				ChangePct:  sector.ChangePct,
				Stocks:     results,
			}
			if err := s.persistSector(res); err != nil {
				s.finish(models.ScanStatusError, fmt.Sprintf("persist sector %s: %v", sector.Name, err), started)
				return
			}
		}
		s.setPhase(next, fmt.Sprintf("sector %s done", sector.Name))
	}

	if s.isCancelled(ctx) {
		s.finish(models.ScanStatusCancelled, "", started)
		return
	}

	if s.l != nil {
		s.l.Info("scan finished",
			applogger.String("scan_id", s.scanID()),
			applogger.Int("sectors", len(sectors)),
			applogger.Int("symbols", scanned),
			applogger.Duration("took", s.now().Sub(started)),
		)
	}
	s.finish(models.ScanStatusCompleted, "", started)
}

// resolveConstituents returns this sector's symbols that no earlier
// sector already claimed, preferring cache over the provider. Provider
// failure skips the sector rather than aborting the scan.
func (s *Scanner) resolveConstituents(ctx context.Context, sector models.SectorInfo, claimed map[string]bool, order int) []symbolClaim {
	rows, ok := s.cache.Constituents(ctx, sector.Name)
	if !ok {
		var err error
		rows, err = s.source.Constituents(ctx, sector)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordFetchError("constituents")
			}
			if s.l != nil {
				s.l.Warn("skipping sector, constituents unavailable",
					applogger.String("sector", sector.Name), applogger.Error(err))
			}
			return nil
		}
		s.cache.PutConstituents(ctx, sector.Name, rows)
	}

	out := make([]symbolClaim, 0, len(rows))
	for j, row := range rows {
		if claimed[row.Code] {
			continue
		}
		claimed[row.Code] = true
		out = append(out, symbolClaim{info: row, sector: sector, order: order*10000 + j})
	}
	return out
}

// resolveSeries merges cached series with freshly fetched ones. Cache
// misses go through the bounded pool with inter-request pacing; a
// failed symbol is skipped, never fatal.
func (s *Scanner) resolveSeries(ctx context.Context, pool *queue.Pool, pacer *ratelimit.Pacer, symbols []symbolClaim, progFrom, progTo int) map[string][]models.Bar {
	codes := make([]string, len(symbols))
	for i, sym := range symbols {
		codes[i] = sym.info.Code
	}

	series, missing := s.cache.SeriesBatch(ctx, codes)
	if len(missing) == 0 {
		return series
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		done int
	)
	for _, code := range missing {
		code := code
		wg.Add(1)
		err := pool.Submit(ctx, func(taskCtx context.Context) {
			defer wg.Done()
			if err := pacer.Wait(taskCtx); err != nil {
				return
			}
			bars, err := s.source.DailyBars(taskCtx, code, s.cfg.LookbackDays)
			mu.Lock()
			done++
			prog := progFrom + (progTo-progFrom)*done/(len(missing)+1)
			mu.Unlock()
			s.setProgress(prog)
			if err != nil {
				if s.metrics != nil {
					s.metrics.RecordFetchError("series")
				}
				if s.l != nil {
					s.l.Warn("skipping symbol, series unavailable",
						applogger.String("code", code), applogger.Error(err))
				}
				return
			}
			s.cache.PutSeries(taskCtx, code, bars)
			mu.Lock()
			series[code] = bars
			mu.Unlock()
		})
		if err != nil {
			// Pool rejected the task: cancellation in progress.
			wg.Done()
			break
		}
	}
	wg.Wait()
	return series
}

// scoreSector evaluates each symbol and returns the qualifying results
// sorted by descending score, discovery order breaking ties.
func (s *Scanner) scoreSector(engine *indicator.Engine, params models.ScanParams, symbols []symbolClaim, series map[string][]models.Bar) []models.StockResult {
	type ranked struct {
		res   models.StockResult
		order int
	}
	var out []ranked
	for _, sym := range symbols {
		bars, ok := series[sym.info.Code]
		if !ok {
			continue
		}
		res, ok := engine.Evaluate(sym.info.Code, sym.info.Name, bars, params.MinSqueezeDays)
		if !ok {
			continue
		}
		res.MarketCap = sym.info.MarketCap
		res.IsLeader = sym.info.IsLeader
		res.LeaderRank = sym.info.LeaderRank
		res.Tags = indicator.Tags(res)
		out = append(out, ranked{res: *res, order: sym.order})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].res.Score != out[b].res.Score {
			return out[a].res.Score > out[b].res.Score
		}
		return out[a].order < out[b].order
	})

	results := make([]models.StockResult, len(out))
	for i, r := range out {
		results[i] = r.res
	}
	return results
}

func (s *Scanner) isCancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Scanner) scanID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// setPhase advances both the label and the monotonic progress value.
func (s *Scanner) setPhase(progress int, phase string) {
	s.mu.Lock()
	if s.current != nil {
		if progress > s.current.Progress {
			s.current.Progress = progress
		}
		s.current.CurrentPhase = phase
		s.current.UpdatedAt = s.now()
	}
	prog := 0
	if s.current != nil {
		prog = s.current.Progress
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordScanProgress(prog)
	}
	s.notify()
}

func (s *Scanner) setProgress(progress int) {
	s.mu.Lock()
	if s.current != nil && progress > s.current.Progress {
		s.current.Progress = progress
		s.current.UpdatedAt = s.now()
	}
	prog := 0
	if s.current != nil {
		prog = s.current.Progress
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordScanProgress(prog)
	}
	s.notify()
}

// persistProgress writes the live record at a phase boundary. Failures
// are logged; the in-memory record remains authoritative mid-run.
func (s *Scanner) persistProgress() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	rec := s.current.Snapshot()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.UpdateScan(ctx, rec); err != nil && s.l != nil {
		s.l.Warn("progress write failed", applogger.String("scan_id", rec.ID), applogger.Error(err))
	}
	_ = s.events.PublishScanEvent(ctx, "progress", rec)
}

func (s *Scanner) persistSector(res models.SectorResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return s.store.SaveSectorResult(ctx, res)
}

// finish performs the single terminal transition and persists it.
func (s *Scanner) finish(status models.ScanStatus, errMsg string, started time.Time) {
	s.mu.Lock()
	if s.current == nil || s.current.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.current.Status = status
	s.current.Error = errMsg
	s.current.UpdatedAt = s.now()
	if status == models.ScanStatusCompleted {
		s.current.Progress = 100
		s.current.CurrentPhase = "completed"
	} else {
		s.current.CurrentPhase = string(status)
	}
	rec := s.current.Snapshot()
	s.running = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.UpdateScan(ctx, rec); err != nil && s.l != nil {
		s.l.Error("terminal write failed", applogger.String("scan_id", rec.ID), applogger.Error(err))
	}
	_ = s.events.PublishScanEvent(ctx, string(status), rec)
	if s.metrics != nil {
		s.metrics.RecordScanFinished(string(status), s.now().Sub(started).Seconds())
	}
	if s.l != nil && status == models.ScanStatusError {
		s.l.Error("scan failed", applogger.String("scan_id", rec.ID), applogger.String("reason", errMsg))
	}
	s.notify()
}

// Wait blocks until the current run finishes. Test helper.
func (s *Scanner) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"SqueezeScan/internal/domain/models"
)

// qualifyingBars oscillates around 12 with geometrically decaying
// amplitude, so the band width contracts monotonically and the last
// bars always sit inside a squeeze.
func qualifyingBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	amp := 1.0
	for i := range bars {
		dir := 1.0
		if i%2 == 1 {
			dir = -1
		}
		c := 12.0 + dir*amp
		amp *= 0.97
		bars[i] = models.Bar{
			Date:        fmt.Sprintf("2026-%02d-%02d", i/28+1, i%28+1),
			Open:        c,
			High:        c + 0.2,
			Low:         c - 0.2,
			Close:       c,
			Volume:      1000 + float64(i),
			Amount:      c * 1000,
			TurnoverPct: 5,
		}
	}
	return bars
}

type stubSource struct {
	mu               sync.Mutex
	sectors          []models.SectorInfo
	sectorsErr       error
	constituents     map[string][]models.ConstituentInfo
	constituentsHook func(sector models.SectorInfo)
	barsLen          int
	barCalls         []string
}

func (s *stubSource) HotSectors(ctx context.Context) ([]models.SectorInfo, error) {
	return s.sectors, s.sectorsErr
}

func (s *stubSource) Constituents(ctx context.Context, sector models.SectorInfo) ([]models.ConstituentInfo, error) {
	if s.constituentsHook != nil {
		s.constituentsHook(sector)
	}
	rows, ok := s.constituents[sector.Name]
	if !ok {
		return nil, errors.New("unknown sector")
	}
	return rows, nil
}

func (s *stubSource) DailyBars(ctx context.Context, code string, lookbackDays int) ([]models.Bar, error) {
	s.mu.Lock()
	s.barCalls = append(s.barCalls, code)
	s.mu.Unlock()
	return qualifyingBars(s.barsLen), nil
}

// passCache is a MarketCache that never hits, so every series goes
// through the provider path.
type passCache struct{}

func (passCache) Constituents(context.Context, string) ([]models.ConstituentInfo, bool) {
	return nil, false
}
func (passCache) PutConstituents(context.Context, string, []models.ConstituentInfo) {}
func (passCache) Series(context.Context, string, int) ([]models.Bar, bool)          { return nil, false }
func (passCache) PutSeries(context.Context, string, []models.Bar)                   {}
func (passCache) SeriesBatch(_ context.Context, codes []string) (map[string][]models.Bar, []string) {
	return map[string][]models.Bar{}, codes
}
func (passCache) InvalidateExpired(context.Context) error { return nil }

// seededCache serves pre-populated entries, standing in for a cache
// warmed earlier the same day. Writes are recorded, not stored.
type seededCache struct {
	mu           sync.Mutex
	constituents map[string][]models.ConstituentInfo
	series       map[string][]models.Bar
	putSeries    []string
}

func (c *seededCache) Constituents(_ context.Context, sector string) ([]models.ConstituentInfo, bool) {
	rows, ok := c.constituents[sector]
	return rows, ok
}

func (c *seededCache) PutConstituents(context.Context, string, []models.ConstituentInfo) {}

func (c *seededCache) Series(_ context.Context, code string, _ int) ([]models.Bar, bool) {
	bars, ok := c.series[code]
	return bars, ok
}

func (c *seededCache) PutSeries(_ context.Context, code string, _ []models.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putSeries = append(c.putSeries, code)
}

func (c *seededCache) SeriesBatch(_ context.Context, codes []string) (map[string][]models.Bar, []string) {
	hits := make(map[string][]models.Bar)
	var missing []string
	for _, code := range codes {
		if bars, ok := c.series[code]; ok {
			hits[code] = bars
		} else {
			missing = append(missing, code)
		}
	}
	return hits, missing
}

func (c *seededCache) InvalidateExpired(context.Context) error { return nil }

func (c *seededCache) writtenSeries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.putSeries))
	copy(out, c.putSeries)
	return out
}

type memStore struct {
	mu      sync.Mutex
	created []models.ScanRecord
	updated []models.ScanRecord
	sectors []models.SectorResult
	onSave  func(models.SectorResult)
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) CreateScan(_ context.Context, rec models.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, rec)
	return nil
}

func (s *memStore) UpdateScan(_ context.Context, rec models.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, rec)
	return nil
}

func (s *memStore) SaveSectorResult(_ context.Context, res models.SectorResult) error {
	s.mu.Lock()
	s.sectors = append(s.sectors, res)
	hook := s.onSave
	s.mu.Unlock()
	if hook != nil {
		hook(res)
	}
	return nil
}

func (s *memStore) ScanDetail(context.Context, string) (*models.ScanDetail, error) { return nil, nil }
func (s *memStore) LatestCompleted(context.Context) (*models.ScanDetail, error)    { return nil, nil }
func (s *memStore) ScanHistory(context.Context, int) ([]models.ScanSummary, error) {
	return nil, nil
}
func (s *memStore) DeleteScan(context.Context, string) error { return nil }
func (s *memStore) Watchlist(context.Context) ([]models.WatchlistEntry, error) {
	return nil, nil
}
func (s *memStore) AddWatchlist(context.Context, models.WatchlistEntry) error { return nil }
func (s *memStore) RemoveWatchlist(context.Context, string) error             { return nil }
func (s *memStore) SaveReport(context.Context, models.AIReport) error         { return nil }
func (s *memStore) Reports(context.Context, int) ([]models.AIReport, error)   { return nil, nil }
func (s *memStore) Report(context.Context, string) (*models.AIReport, error)  { return nil, nil }
func (s *memStore) DeleteReport(context.Context, string) error                { return nil }
func (s *memStore) Close() error                                              { return nil }

func (s *memStore) savedSectors() []models.SectorResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SectorResult, len(s.sectors))
	copy(out, s.sectors)
	return out
}

func (s *memStore) lastUpdate() (models.ScanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updated) == 0 {
		return models.ScanRecord{}, false
	}
	return s.updated[len(s.updated)-1], true
}

type nopEvents struct{}

func (nopEvents) PublishScanEvent(context.Context, string, models.ScanRecord) error { return nil }
func (nopEvents) Close() error                                                      { return nil }

func threeSectorSource() *stubSource {
	return &stubSource{
		sectors: []models.SectorInfo{
			{Name: "semis", Code: "BK1036", ChangePct: 4.2},
			{Name: "banking", Code: "BK0475", ChangePct: 2.1},
			{Name: "autos", Code: "BK0481", ChangePct: 1.3},
		},
		constituents: map[string][]models.ConstituentInfo{
			"semis": {
				{Code: "688981", Name: "s1", MarketCap: 900, IsLeader: true, LeaderRank: 1},
				{Code: "603986", Name: "s2", MarketCap: 500},
				{Code: "002371", Name: "s3", MarketCap: 400},
				{Code: "600584", Name: "shared", MarketCap: 300},
			},
			"banking": {
				{Code: "600036", Name: "b1", MarketCap: 950, IsLeader: true, LeaderRank: 1},
				{Code: "600584", Name: "shared", MarketCap: 300}, // claimed by semis
				{Code: "601328", Name: "b2", MarketCap: 200},
			},
			"autos": {
				{Code: "002594", Name: "a1", MarketCap: 800, IsLeader: true, LeaderRank: 1},
				{Code: "601127", Name: "a2", MarketCap: 600},
			},
		},
		barsLen: 80,
	}
}

func newTestScanner(src *stubSource, store *memStore) *Scanner {
	s := NewScanner(ScannerConfig{
		Workers:          3,
		MinFetchInterval: 0,
		FetchJitter:      0,
		LookbackDays:     120,
	}, src, passCache{}, store, nopEvents{}, nil)
	return s
}

func TestScanCompletesWithDedupedSectors(t *testing.T) {
	src := threeSectorSource()
	store := &memStore{}
	s := newTestScanner(src, store)

	views, unsub := s.Subscribe()
	defer unsub()

	id, err := s.Start(context.Background(), models.ScanParams{Sectors: 3, MinSqueezeDays: 1, Period: 20})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Wait()

	st := s.Status()
	if st.Status != models.ScanStatusCompleted {
		t.Fatalf("status = %s (%s), want completed", st.Status, st.Error)
	}
	if st.Progress != 100 || st.IsScanning {
		t.Fatalf("terminal view wrong: %+v", st)
	}

	saved := store.savedSectors()
	if len(saved) != 3 {
		t.Fatalf("expected 3 sector groups, got %d", len(saved))
	}
	seen := map[string]string{}
	for _, grp := range saved {
		if grp.ScanID != id {
			t.Fatalf("sector %s carries scan id %s, want %s", grp.SectorName, grp.ScanID, id)
		}
		for _, stk := range grp.Stocks {
			if owner, dup := seen[stk.Code]; dup {
				t.Fatalf("%s appears in both %s and %s", stk.Code, owner, grp.SectorName)
			}
			seen[stk.Code] = grp.SectorName
		}
	}
	if seen["600584"] != "semis" {
		t.Fatalf("shared symbol owned by %s, want semis", seen["600584"])
	}
	if len(seen) != 8 {
		t.Fatalf("expected 8 distinct symbols, got %d", len(seen))
	}

	for _, grp := range saved {
		for i := 1; i < len(grp.Stocks); i++ {
			if grp.Stocks[i].Score > grp.Stocks[i-1].Score {
				t.Fatalf("sector %s not sorted by score", grp.SectorName)
			}
		}
	}

	last, ok := store.lastUpdate()
	if !ok || last.Status != models.ScanStatusCompleted || last.Progress != 100 {
		t.Fatalf("terminal record not persisted: %+v", last)
	}

	prev := -1
	for {
		select {
		case v := <-views:
			if v.Progress < prev {
				t.Fatalf("progress went backwards: %d -> %d", prev, v.Progress)
			}
			prev = v.Progress
		default:
			return
		}
	}
}

func TestScanMergesCachedAndFetchedData(t *testing.T) {
	src := threeSectorSource()
	var askedSectors []string
	src.constituentsHook = func(sector models.SectorInfo) {
		askedSectors = append(askedSectors, sector.Name)
	}

	// One sector's constituents and four of the eight symbols' series
	// are already cached; the rest must come from the provider.
	cachedSeries := map[string][]models.Bar{
		"688981": qualifyingBars(80),
		"603986": qualifyingBars(80),
		"600036": qualifyingBars(80),
		"002594": qualifyingBars(80),
	}
	cached := &seededCache{
		constituents: map[string][]models.ConstituentInfo{
			"semis": src.constituents["semis"],
		},
		series: cachedSeries,
	}
	store := &memStore{}
	s := NewScanner(ScannerConfig{Workers: 3, LookbackDays: 120}, src, cached, store, nopEvents{}, nil)

	if _, err := s.Start(context.Background(), models.ScanParams{Sectors: 3, MinSqueezeDays: 1, Period: 20}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Wait()

	if st := s.Status(); st.Status != models.ScanStatusCompleted {
		t.Fatalf("status = %s (%s), want completed", st.Status, st.Error)
	}

	for _, name := range askedSectors {
		if name == "semis" {
			t.Fatal("cached sector constituents must not hit the provider")
		}
	}

	src.mu.Lock()
	fetched := append([]string(nil), src.barCalls...)
	src.mu.Unlock()
	for _, code := range fetched {
		if _, ok := cachedSeries[code]; ok {
			t.Fatalf("cached series %s fetched from the provider", code)
		}
	}
	if len(fetched) != 4 {
		t.Fatalf("expected 4 provider series fetches, got %v", fetched)
	}

	// Only freshly fetched series are written back.
	for _, code := range cached.writtenSeries() {
		if _, ok := cachedSeries[code]; ok {
			t.Fatalf("cached series %s rewritten to cache", code)
		}
	}

	// The result set is the union of cached and fetched symbols.
	seen := map[string]bool{}
	for _, grp := range store.savedSectors() {
		for _, stk := range grp.Stocks {
			if seen[stk.Code] {
				t.Fatalf("%s appears twice in the results", stk.Code)
			}
			seen[stk.Code] = true
		}
	}
	if len(seen) != 8 {
		t.Fatalf("expected union of 8 symbols, got %d: %v", len(seen), seen)
	}
	for code := range cachedSeries {
		if !seen[code] {
			t.Fatalf("cached symbol %s missing from results", code)
		}
	}
}

func TestCancelAfterFirstSectorKeepsItsResults(t *testing.T) {
	src := threeSectorSource()
	store := &memStore{}
	s := newTestScanner(src, store)

	// Cancel once the second sector begins; the first is already saved.
	src.constituentsHook = func(sector models.SectorInfo) {
		if sector.Name == "banking" {
			if err := s.Cancel(); err != nil {
				t.Errorf("cancel: %v", err)
			}
		}
	}

	if _, err := s.Start(context.Background(), models.ScanParams{Sectors: 3, MinSqueezeDays: 1, Period: 20}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Wait()

	st := s.Status()
	if st.Status != models.ScanStatusCancelled {
		t.Fatalf("status = %s, want cancelled", st.Status)
	}

	saved := store.savedSectors()
	if len(saved) != 1 || saved[0].SectorName != "semis" {
		t.Fatalf("only the first sector should persist, got %+v", saved)
	}
	last, ok := store.lastUpdate()
	if !ok || last.Status != models.ScanStatusCancelled {
		t.Fatalf("terminal cancelled record not persisted: %+v", last)
	}

	if err := s.Cancel(); !errors.Is(err, ErrNoActiveScan) {
		t.Fatalf("cancel after finish = %v, want ErrNoActiveScan", err)
	}
}

func TestSectorListFailureFailsScan(t *testing.T) {
	src := &stubSource{sectorsErr: errors.New("push2 down")}
	store := &memStore{}
	s := newTestScanner(src, store)

	if _, err := s.Start(context.Background(), models.ScanParams{Sectors: 3, MinSqueezeDays: 1, Period: 20}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Wait()

	st := s.Status()
	if st.Status != models.ScanStatusError || st.Error == "" {
		t.Fatalf("expected error status with message, got %+v", st)
	}
	if len(store.savedSectors()) != 0 {
		t.Fatal("failed scan must not persist sector results")
	}

	// A failed scan releases the slot for the next one.
	src2 := threeSectorSource()
	s2 := newTestScanner(src2, store)
	if _, err := s2.Start(context.Background(), models.ScanParams{Sectors: 1, MinSqueezeDays: 1, Period: 20}); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	s2.Wait()
}

func TestStartRejectsConcurrentScan(t *testing.T) {
	src := threeSectorSource()
	store := &memStore{}
	s := newTestScanner(src, store)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	src.constituentsHook = func(models.SectorInfo) {
		once.Do(func() { close(started) })
		<-release
	}

	id, err := s.Start(context.Background(), models.ScanParams{Sectors: 3, MinSqueezeDays: 1, Period: 20})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	if _, err := s.Start(context.Background(), models.ScanParams{Sectors: 1, MinSqueezeDays: 1, Period: 20}); !errors.Is(err, ErrScanRunning) {
		t.Fatalf("second start = %v, want ErrScanRunning", err)
	}
	if err := s.Delete(context.Background(), id); !errors.Is(err, ErrScanActive) {
		t.Fatalf("delete running scan = %v, want ErrScanActive", err)
	}

	close(release)
	s.Wait()
	if got := s.Status().Status; got != models.ScanStatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
}

func TestEmptySectorListIsAnError(t *testing.T) {
	src := &stubSource{sectors: nil}
	store := &memStore{}
	s := newTestScanner(src, store)

	if _, err := s.Start(context.Background(), models.ScanParams{Sectors: 5, MinSqueezeDays: 1, Period: 20}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Wait()
	if got := s.Status(); got.Status != models.ScanStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SqueezeScan/internal/domain/models"
	pkgch "SqueezeScan/pkg/clickhouse"
	applogger "SqueezeScan/pkg/logger"
)

// Scan records are versioned rows in a ReplacingMergeTree: every status
// or progress write inserts a new version and reads collapse with
// FINAL. Sector results and reports are insert-only; deletes are
// lightweight mutations on low-volume tables.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scan_records (
        id String,
        created_at DateTime64(3),
        updated_at DateTime64(3),
        status LowCardinality(String),
        progress Int32,
        current_phase String,
        error String,
        params_json String,
        hot_sectors_json String,
        version UInt64
    ) ENGINE = ReplacingMergeTree(version)
    ORDER BY id`,

	`CREATE TABLE IF NOT EXISTS scan_results (
        scan_id String,
        sector_name String,
        sector_change Float64,
        stock_count Int32,
        stocks_json String,
        created_at DateTime64(3)
    ) ENGINE = MergeTree()
    ORDER BY (scan_id, sector_name)`,

	`CREATE TABLE IF NOT EXISTS watchlist (
        code String,
        name String,
        sector String,
        note String,
        added_at DateTime64(3),
        deleted UInt8,
        version UInt64
    ) ENGINE = ReplacingMergeTree(version)
    ORDER BY code`,

	`CREATE TABLE IF NOT EXISTS ai_reports (
        id String,
        scan_id String,
        created_at DateTime64(3),
        model String,
        tokens_used Int32,
        news_digest String,
        scan_summary String,
        analysis String
    ) ENGINE = MergeTree()
    ORDER BY (created_at, id)`,
}

// CHResultStore implements ResultStore backed by ClickHouse.
type CHResultStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHResultStore(ch *pkgch.Client) *CHResultStore {
	return &CHResultStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHResultStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHResultStore) Init(ctx context.Context) error {
	if err := s.ch.Health(ctx); err != nil {
		return fmt.Errorf("clickhouse health: %w", err)
	}
	return s.ch.InitSchema(ctx, schemaStatements)
}

func (s *CHResultStore) Close() error { return s.ch.Close() }

func (s *CHResultStore) CreateScan(ctx context.Context, rec models.ScanRecord) error {
	return s.writeScan(ctx, rec)
}

func (s *CHResultStore) UpdateScan(ctx context.Context, rec models.ScanRecord) error {
	return s.writeScan(ctx, rec)
}

func (s *CHResultStore) writeScan(ctx context.Context, rec models.ScanRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	sectors, err := json.Marshal(rec.HotSectors)
	if err != nil {
		return fmt.Errorf("marshal hot sectors: %w", err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	const q = `INSERT INTO scan_records
        (id, created_at, updated_at, status, progress, current_phase, error, params_json, hot_sectors_json, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.CreatedAt, rec.UpdatedAt, string(rec.Status), rec.Progress,
		rec.CurrentPhase, rec.Error, string(params), string(sectors),
		uint64(rec.UpdatedAt.UnixNano()),
	)
	if err != nil {
		return fmt.Errorf("write scan %s: %w", rec.ID, err)
	}
	return nil
}

func (s *CHResultStore) SaveSectorResult(ctx context.Context, res models.SectorResult) error {
	stocks, err := json.Marshal(res.Stocks)
	if err != nil {
		return fmt.Errorf("marshal stocks: %w", err)
	}
	const q = `INSERT INTO scan_results
        (scan_id, sector_name, sector_change, stock_count, stocks_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		res.ScanID, res.SectorName, res.ChangePct, len(res.Stocks), string(stocks), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save sector result %s/%s: %w", res.ScanID, res.SectorName, err)
	}
	return nil
}

// ScanDetail returns nil without error when the scan does not exist.
func (s *CHResultStore) ScanDetail(ctx context.Context, scanID string) (*models.ScanDetail, error) {
	rec, err := s.scanRecord(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	const q = `SELECT sector_name, sector_change, stocks_json
        FROM scan_results WHERE scan_id = ? ORDER BY created_at ASC, sector_name ASC`
	rows, err := s.db.QueryContext(ctx, q, scanID)
	if err != nil {
		return nil, fmt.Errorf("query sector results: %w", err)
	}
	defer rows.Close()

	detail := &models.ScanDetail{ScanRecord: *rec}
	for rows.Next() {
		var sr models.SectorResult
		var stocksJSON string
		if err := rows.Scan(&sr.SectorName, &sr.ChangePct, &stocksJSON); err != nil {
			return nil, fmt.Errorf("scan sector result: %w", err)
		}
		sr.ScanID = scanID
		if err := json.Unmarshal([]byte(stocksJSON), &sr.Stocks); err != nil {
			if s.l != nil {
				s.l.Warn("corrupt stocks payload",
					applogger.String("scan_id", scanID),
					applogger.String("sector", sr.SectorName),
					applogger.Error(err))
			}
			continue
		}
		detail.Results = append(detail.Results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return detail, nil
}

func (s *CHResultStore) LatestCompleted(ctx context.Context) (*models.ScanDetail, error) {
	const q = `SELECT id FROM scan_records FINAL
        WHERE status = 'completed' ORDER BY created_at DESC LIMIT 1`
	var id string
	if err := s.db.QueryRowContext(ctx, q).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest completed: %w", err)
	}
	return s.ScanDetail(ctx, id)
}

func (s *CHResultStore) ScanHistory(ctx context.Context, limit int) ([]models.ScanSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT id, created_at, status, progress, error, params_json, hot_sectors_json
        FROM scan_records FINAL ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.ScanSummary
	for rows.Next() {
		var sum models.ScanSummary
		var status, paramsJSON, sectorsJSON string
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &status, &sum.Progress, &sum.Error, &paramsJSON, &sectorsJSON); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		sum.Status = models.ScanStatus(status)
		_ = json.Unmarshal([]byte(paramsJSON), &sum.Params)
		_ = json.Unmarshal([]byte(sectorsJSON), &sum.HotSectors)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if err := s.fillHistoryCounts(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CHResultStore) fillHistoryCounts(ctx context.Context, sums []models.ScanSummary) error {
	if len(sums) == 0 {
		return nil
	}
	const q = `SELECT scan_id, count() AS sectors, sum(stock_count) AS stocks
        FROM scan_results GROUP BY scan_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query history counts: %w", err)
	}
	defer rows.Close()

	type counts struct{ sectors, stocks int }
	byScan := make(map[string]counts)
	for rows.Next() {
		var id string
		var c counts
		if err := rows.Scan(&id, &c.sectors, &c.stocks); err != nil {
			return fmt.Errorf("scan counts row: %w", err)
		}
		byScan[id] = c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	for i := range sums {
		c := byScan[sums[i].ID]
		sums[i].SectorCount = c.sectors
		sums[i].StockCount = c.stocks
	}
	return nil
}

// DeleteScan removes the record and its results. The caller is
// responsible for rejecting deletion of a running scan.
func (s *CHResultStore) DeleteScan(ctx context.Context, scanID string) error {
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE scan_results DELETE WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("delete scan results: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE scan_records DELETE WHERE id = ?`, scanID); err != nil {
		return fmt.Errorf("delete scan record: %w", err)
	}
	return nil
}

func (s *CHResultStore) scanRecord(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	const q = `SELECT id, created_at, updated_at, status, progress, current_phase, error, params_json, hot_sectors_json
        FROM scan_records FINAL WHERE id = ? LIMIT 1`
	var rec models.ScanRecord
	var status, paramsJSON, sectorsJSON string
	err := s.db.QueryRowContext(ctx, q, scanID).Scan(
		&rec.ID, &rec.CreatedAt, &rec.UpdatedAt, &status, &rec.Progress,
		&rec.CurrentPhase, &rec.Error, &paramsJSON, &sectorsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query scan %s: %w", scanID, err)
	}
	rec.Status = models.ScanStatus(status)
	_ = json.Unmarshal([]byte(paramsJSON), &rec.Params)
	_ = json.Unmarshal([]byte(sectorsJSON), &rec.HotSectors)
	return &rec, nil
}

func (s *CHResultStore) Watchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	const q = `SELECT code, name, sector, note, added_at
        FROM watchlist FINAL WHERE deleted = 0 ORDER BY added_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	var out []models.WatchlistEntry
	for rows.Next() {
		var e models.WatchlistEntry
		if err := rows.Scan(&e.Code, &e.Name, &e.Sector, &e.Note, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *CHResultStore) AddWatchlist(ctx context.Context, e models.WatchlistEntry) error {
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	const q = `INSERT INTO watchlist (code, name, sector, note, added_at, deleted, version)
        VALUES (?, ?, ?, ?, ?, 0, ?)`
	_, err := s.db.ExecContext(ctx, q, e.Code, e.Name, e.Sector, e.Note, e.AddedAt, uint64(time.Now().UnixNano()))
	if err != nil {
		return fmt.Errorf("add watchlist %s: %w", e.Code, err)
	}
	return nil
}

// RemoveWatchlist writes a tombstone version; reads filter it out.
func (s *CHResultStore) RemoveWatchlist(ctx context.Context, code string) error {
	const q = `INSERT INTO watchlist (code, name, sector, note, added_at, deleted, version)
        VALUES (?, '', '', '', ?, 1, ?)`
	_, err := s.db.ExecContext(ctx, q, code, time.Now(), uint64(time.Now().UnixNano()))
	if err != nil {
		return fmt.Errorf("remove watchlist %s: %w", code, err)
	}
	return nil
}

func (s *CHResultStore) SaveReport(ctx context.Context, r models.AIReport) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	const q = `INSERT INTO ai_reports
        (id, scan_id, created_at, model, tokens_used, news_digest, scan_summary, analysis)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		r.ID, r.ScanID, r.CreatedAt, r.Model, r.TokensUsed, r.NewsDigest, r.ScanSummary, r.Analysis,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	return nil
}

func (s *CHResultStore) Reports(ctx context.Context, limit int) ([]models.AIReport, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT id, scan_id, created_at, model, tokens_used, news_digest, scan_summary, analysis
        FROM ai_reports ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []models.AIReport
	for rows.Next() {
		var r models.AIReport
		if err := rows.Scan(&r.ID, &r.ScanID, &r.CreatedAt, &r.Model, &r.TokensUsed,
			&r.NewsDigest, &r.ScanSummary, &r.Analysis); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Report returns nil without error when the id does not exist.
func (s *CHResultStore) Report(ctx context.Context, id string) (*models.AIReport, error) {
	const q = `SELECT id, scan_id, created_at, model, tokens_used, news_digest, scan_summary, analysis
        FROM ai_reports WHERE id = ? LIMIT 1`
	var r models.AIReport
	err := s.db.QueryRowContext(ctx, q, id).Scan(&r.ID, &r.ScanID, &r.CreatedAt,
		&r.Model, &r.TokensUsed, &r.NewsDigest, &r.ScanSummary, &r.Analysis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query report %s: %w", id, err)
	}
	return &r, nil
}

func (s *CHResultStore) DeleteReport(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE ai_reports DELETE WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	return nil
}

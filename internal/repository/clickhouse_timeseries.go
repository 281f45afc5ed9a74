package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	pkgch "CoinPulse/pkg/clickhouse"
	applogger "CoinPulse/pkg/logger"
)

// CHObservationStore implements the append-only observation log on ClickHouse.
type CHObservationStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHObservationStore(ch *pkgch.Client, table string) *CHObservationStore {
	return &CHObservationStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHObservationStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHObservationStore) Append(ctx context.Context, o *models.PriceObservation) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table, observationColumns)
	_, err := s.db.ExecContext(ctx, q,
		o.ItemID, o.SourceID, o.Price, o.Currency, o.Category, o.ObservedAt, string(o.RawPayload))
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

func (s *CHObservationStore) AppendBatch(ctx context.Context, obs []*models.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}
	// Multi-row VALUES insert, chunked to bound statement size.
	const chunkSize = 2000
	for start := 0; start < len(obs); start += chunkSize {
		end := start + chunkSize
		if end > len(obs) {
			end = len(obs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, o := range obs[start:end] {
			if o == nil || o.ItemID == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, o.ItemID, o.SourceID, o.Price, o.Currency, o.Category, o.ObservedAt, string(o.RawPayload))
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			s.table, observationColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("append batch: %w", err)
		}
	}
	return nil
}

func (s *CHObservationStore) Window(ctx context.Context, item string, since time.Time, limit int) ([]models.PriceObservation, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE item_id = ? AND observed_at >= ?
        ORDER BY observed_at DESC
        LIMIT ?
    `, observationColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, item, since, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse window query error",
				applogger.String("item", item),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("observation window: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.PriceObservation, 0, limit)
	for rows.Next() {
		var o models.PriceObservation
		var raw string
		if err := rows.Scan(&o.ItemID, &o.SourceID, &o.Price, &o.Currency, &o.Category, &o.ObservedAt, &raw); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if raw != "" {
			o.RawPayload = json.RawMessage(raw)
		}
		tmp = append(tmp, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Debug("clickhouse window ok",
			applogger.String("item", item),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *CHObservationStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ domrepo.ObservationStore = (*CHObservationStore)(nil)

// CHEstimateStore keeps the current estimate per item in a ReplacingMergeTree
// plus an append-only history table.
type CHEstimateStore struct {
	db           *sql.DB
	currentTable string
	historyTable string
	l            *applogger.Logger
}

func NewCHEstimateStore(ch *pkgch.Client, currentTable, historyTable string) *CHEstimateStore {
	return &CHEstimateStore{db: ch.DB(), currentTable: currentTable, historyTable: historyTable}
}

// SetLogger injects a structured logger.
func (s *CHEstimateStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHEstimateStore) UpsertCurrent(ctx context.Context, e *models.AggregatedEstimate) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.currentTable, estimateColumns)
	args := []interface{}{e.ItemID, e.Low, e.Average, e.High, e.Confidence, uint32(e.SourceCount), e.ComputedAt, boolToUInt8(e.Stale)}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert estimate: %w", err)
	}
	qh := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.historyTable, estimateColumns)
	if _, err := s.db.ExecContext(ctx, qh, args...); err != nil {
		return fmt.Errorf("append estimate history: %w", err)
	}
	return nil
}

func (s *CHEstimateStore) Current(ctx context.Context, item string) (*models.AggregatedEstimate, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE item_id = ?
    `, estimateColumns, s.currentTable)
	row := s.db.QueryRowContext(ctx, q, item)
	e, err := scanEstimate(row)
	if err == sql.ErrNoRows {
		return nil, domrepo.ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("current estimate: %w", err)
	}
	return e, nil
}

func (s *CHEstimateStore) History(ctx context.Context, item string, from, to time.Time) ([]models.AggregatedEstimate, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE item_id = ? AND computed_at >= ? AND computed_at <= ?
        ORDER BY computed_at ASC
    `, estimateColumns, s.historyTable)
	rows, err := s.db.QueryContext(ctx, q, item, from, to)
	if err != nil {
		return nil, fmt.Errorf("estimate history: %w", err)
	}
	defer rows.Close()

	out := make([]models.AggregatedEstimate, 0, 128)
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *CHEstimateStore) MarkStale(ctx context.Context, item string) error {
	cur, err := s.Current(ctx, item)
	if err == domrepo.ErrNoData {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.Stale {
		return nil
	}
	cur.Stale = true
	// re-insert with a newer version so ReplacingMergeTree keeps the flag;
	// history is not touched, staleness is a property of the current row only
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.currentTable, estimateColumns)
	_, err = s.db.ExecContext(ctx, q,
		cur.ItemID, cur.Low, cur.Average, cur.High, cur.Confidence, uint32(cur.SourceCount), time.Now(), uint8(1))
	if err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}
	return nil
}

var _ domrepo.EstimateStore = (*CHEstimateStore)(nil)

// CHForecastStore is the append-only forecast log.
type CHForecastStore struct {
	db    *sql.DB
	table string
}

func NewCHForecastStore(ch *pkgch.Client, table string) *CHForecastStore {
	return &CHForecastStore{db: ch.DB(), table: table}
}

func (s *CHForecastStore) Append(ctx context.Context, f *models.TrendForecast) error {
	series, err := json.Marshal(f.Series)
	if err != nil {
		return fmt.Errorf("marshal series: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table, forecastColumns)
	if _, err := s.db.ExecContext(ctx, q,
		f.ItemID, f.Horizon, string(series), f.Direction, f.TrendStrength, f.GeneratedAt, f.ModelVersion); err != nil {
		return fmt.Errorf("append forecast: %w", err)
	}
	return nil
}

func (s *CHForecastStore) Latest(ctx context.Context, item string, horizon domrepo.Horizon) (*models.TrendForecast, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE item_id = ? AND horizon = ?
        ORDER BY generated_at DESC
        LIMIT 1
    `, forecastColumns, s.table)
	var f models.TrendForecast
	var series string
	err := s.db.QueryRowContext(ctx, q, item, string(horizon)).Scan(
		&f.ItemID, &f.Horizon, &series, &f.Direction, &f.TrendStrength, &f.GeneratedAt, &f.ModelVersion)
	if err == sql.ErrNoRows {
		return nil, domrepo.ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("latest forecast: %w", err)
	}
	if err := json.Unmarshal([]byte(series), &f.Series); err != nil {
		return nil, fmt.Errorf("unmarshal series: %w", err)
	}
	return &f, nil
}

var _ domrepo.ForecastStore = (*CHForecastStore)(nil)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEstimate(r rowScanner) (*models.AggregatedEstimate, error) {
	var e models.AggregatedEstimate
	var count uint32
	var stale uint8
	if err := r.Scan(&e.ItemID, &e.Low, &e.Average, &e.High, &e.Confidence, &count, &e.ComputedAt, &stale); err != nil {
		return nil, err
	}
	e.SourceCount = int(count)
	e.Stale = stale != 0
	return &e, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

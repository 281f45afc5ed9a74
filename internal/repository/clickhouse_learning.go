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
)

// CHSourceStore persists SourceRecord rows in a ReplacingMergeTree keyed by
// source_id; upserts insert a newer version and reads use FINAL.
type CHSourceStore struct {
	db    *sql.DB
	table string
}

func NewCHSourceStore(ch *pkgch.Client, table string) *CHSourceStore {
	return &CHSourceStore{db: ch.DB(), table: table}
}

func (s *CHSourceStore) Get(ctx context.Context, sourceID string) (*models.SourceRecord, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE source_id = ?
    `, sourceColumns, s.table)
	rec, err := scanSource(s.db.QueryRowContext(ctx, q, sourceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return rec, nil
}

func (s *CHSourceStore) Upsert(ctx context.Context, rec *models.SourceRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (%s, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table, sourceColumns)
	_, err := s.db.ExecContext(ctx, q,
		rec.SourceID, rec.DisplayName, strings.Join(rec.Specialization, ","),
		rec.Reliability, uint64(rec.Observations), rec.LastSeenAt, boolToUInt8(rec.Active), time.Now())
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func (s *CHSourceStore) List(ctx context.Context, activeOnly bool) ([]models.SourceRecord, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
    `, sourceColumns, s.table)
	if activeOnly {
		q += " WHERE is_active = 1"
	}
	q += " ORDER BY source_id"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := make([]models.SourceRecord, 0, 64)
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *CHSourceStore) Touch(ctx context.Context, sourceID string, seenAt time.Time) error {
	rec, err := s.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &models.SourceRecord{
			SourceID:    sourceID,
			DisplayName: sourceID,
			Reliability: models.DefaultReliability,
			Active:      true,
		}
	}
	rec.Observations++
	if seenAt.After(rec.LastSeenAt) {
		rec.LastSeenAt = seenAt
	}
	return s.Upsert(ctx, rec)
}

func (s *CHSourceStore) DeactivateStale(ctx context.Context, olderThan time.Time) (int, error) {
	stale, err := s.staleSources(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	for i := range stale {
		stale[i].Active = false
		if err := s.Upsert(ctx, &stale[i]); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func (s *CHSourceStore) staleSources(ctx context.Context, olderThan time.Time) ([]models.SourceRecord, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE is_active = 1 AND last_seen_at < ?
    `, sourceColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, olderThan)
	if err != nil {
		return nil, fmt.Errorf("stale sources: %w", err)
	}
	defer rows.Close()

	var out []models.SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanSource(r rowScanner) (*models.SourceRecord, error) {
	var rec models.SourceRecord
	var spec string
	var obs uint64
	var active uint8
	if err := r.Scan(&rec.SourceID, &rec.DisplayName, &spec, &rec.Reliability, &obs, &rec.LastSeenAt, &active); err != nil {
		return nil, err
	}
	if spec != "" {
		rec.Specialization = strings.Split(spec, ",")
	}
	rec.Observations = int64(obs)
	rec.Active = active != 0
	return &rec, nil
}

var _ domrepo.SourceStore = (*CHSourceStore)(nil)

// CHLearningStore persists LearningEvent rows. The applied flag flips via a
// versioned re-insert; MarkApplied re-reads first so a second apply is a no-op.
type CHLearningStore struct {
	db    *sql.DB
	table string
}

func NewCHLearningStore(ch *pkgch.Client, table string) *CHLearningStore {
	return &CHLearningStore{db: ch.DB(), table: table}
}

func (s *CHLearningStore) Insert(ctx context.Context, e *models.LearningEvent) error {
	return s.write(ctx, e)
}

func (s *CHLearningStore) write(ctx context.Context, e *models.LearningEvent) error {
	q := fmt.Sprintf("INSERT INTO %s (%s, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, eventColumns)
	var correct int8 = -1
	if e.IsCorrect != nil {
		correct = 0
		if *e.IsCorrect {
			correct = 1
		}
	}
	var rating uint8
	if e.Rating != nil {
		rating = uint8(*e.Rating)
	}
	_, err := s.db.ExecContext(ctx, q,
		e.ID, e.SubjectID, e.Category, correct, rating, string(e.Correction),
		e.CreatedAt, boolToUInt8(e.Applied), time.Now())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *CHLearningStore) Get(ctx context.Context, id string) (*models.LearningEvent, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE id = ?
    `, eventColumns, s.table)
	e, err := scanEvent(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, domrepo.ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *CHLearningStore) Pending(ctx context.Context, limit int) ([]models.LearningEvent, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE applied = 0
        ORDER BY created_at ASC
        LIMIT ?
    `, eventColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	defer rows.Close()

	out := make([]models.LearningEvent, 0, limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *CHLearningStore) MarkApplied(ctx context.Context, id string) (bool, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if e.Applied {
		return false, nil
	}
	e.Applied = true
	if err := s.write(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CHLearningStore) ByCategory(ctx context.Context, category string, since time.Time) ([]models.LearningEvent, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE category = ? AND created_at >= ?
        ORDER BY created_at ASC
    `, eventColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, category, since)
	if err != nil {
		return nil, fmt.Errorf("events by category: %w", err)
	}
	defer rows.Close()

	var out []models.LearningEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvent(r rowScanner) (*models.LearningEvent, error) {
	var e models.LearningEvent
	var correct int8
	var rating uint8
	var correction string
	var applied uint8
	if err := r.Scan(&e.ID, &e.SubjectID, &e.Category, &correct, &rating, &correction, &e.CreatedAt, &applied); err != nil {
		return nil, err
	}
	if correct >= 0 {
		b := correct == 1
		e.IsCorrect = &b
	}
	if rating > 0 {
		v := int(rating)
		e.Rating = &v
	}
	if correction != "" {
		e.Correction = json.RawMessage(correction)
	}
	e.Applied = applied != 0
	return &e, nil
}

var _ domrepo.LearningStore = (*CHLearningStore)(nil)

// CHMetricStore persists per-category performance rollups.
type CHMetricStore struct {
	db    *sql.DB
	table string
}

func NewCHMetricStore(ch *pkgch.Client, table string) *CHMetricStore {
	return &CHMetricStore{db: ch.DB(), table: table}
}

func (s *CHMetricStore) Get(ctx context.Context, category string) (*models.PerformanceMetric, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE category = ?
    `, metricColumns, s.table)
	m, err := scanMetric(s.db.QueryRowContext(ctx, q, category))
	if err == sql.ErrNoRows {
		return nil, domrepo.ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("get metric: %w", err)
	}
	return m, nil
}

func (s *CHMetricStore) Upsert(ctx context.Context, m *models.PerformanceMetric) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?)", s.table, metricColumns)
	_, err := s.db.ExecContext(ctx, q,
		m.Category, m.AccuracyImpr, uint64(m.TotalEvents), uint64(m.Corrections), m.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert metric: %w", err)
	}
	return nil
}

func (s *CHMetricStore) List(ctx context.Context) ([]models.PerformanceMetric, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        ORDER BY category
    `, metricColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var out []models.PerformanceMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMetric(r rowScanner) (*models.PerformanceMetric, error) {
	var m models.PerformanceMetric
	var total, corr uint64
	if err := r.Scan(&m.Category, &m.AccuracyImpr, &total, &corr, &m.LastUpdatedAt); err != nil {
		return nil, err
	}
	m.TotalEvents = int64(total)
	m.Corrections = int64(corr)
	return &m, nil
}

var _ domrepo.MetricStore = (*CHMetricStore)(nil)

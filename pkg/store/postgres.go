package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// schema is applied idempotently at startup. Details and original results
// live in jsonb; the threat report dedup identity is enforced by a unique
// index so concurrent duplicate reports cannot race past the application
// check.
const schema = `
CREATE TABLE IF NOT EXISTS scan_records (
	id            BIGSERIAL PRIMARY KEY,
	scan_type     TEXT NOT NULL,
	input_excerpt TEXT NOT NULL DEFAULT '',
	verdict       TEXT NOT NULL,
	severity      TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	details       JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_scan_records_type ON scan_records (scan_type);
CREATE INDEX IF NOT EXISTS idx_scan_records_created ON scan_records (created_at DESC);

CREATE TABLE IF NOT EXISTS threat_alerts (
	id             BIGSERIAL PRIMARY KEY,
	scan_record_id BIGINT NOT NULL UNIQUE REFERENCES scan_records (id) ON DELETE CASCADE,
	severity       TEXT NOT NULL,
	title          TEXT NOT NULL,
	message        TEXT NOT NULL,
	acknowledged   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS threat_reports (
	id                BIGSERIAL PRIMARY KEY,
	content_type      TEXT NOT NULL,
	content           TEXT NOT NULL,
	original_result   JSONB NOT NULL DEFAULT '{}',
	comment           TEXT NOT NULL DEFAULT '',
	is_urgent         BOOLEAN NOT NULL DEFAULT FALSE,
	reporter_name     TEXT NOT NULL DEFAULT 'Anonymous User',
	report_count      INTEGER NOT NULL DEFAULT 1,
	status            TEXT NOT NULL DEFAULT 'pending',
	reviewed_by       TEXT NOT NULL DEFAULT '',
	reviewed_at       TIMESTAMPTZ,
	review_notes      TEXT NOT NULL DEFAULT '',
	added_to_training BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_threat_reports_identity ON threat_reports (content_type, content);
`

// NewPostgresStore connects to databaseURL, verifies the connection and
// applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Printf("[STORE] Postgres store ready")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateScan(ctx context.Context, record *ScanRecord, alert *ThreatAlert) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO scan_records (scan_type, input_excerpt, verdict, severity, confidence, risk_score, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		record.ScanType, record.InputExcerpt, record.Verdict, record.Severity,
		record.Confidence, record.RiskScore, record.Details,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}

	if alert != nil {
		alert.ScanRecordID = record.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO threat_alerts (scan_record_id, severity, title, message)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			alert.ScanRecordID, alert.Severity, alert.Title, alert.Message,
		).Scan(&alert.ID, &alert.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert threat alert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scan_type, input_excerpt, verdict, severity, confidence, risk_score, details, created_at
		 FROM scan_records ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []ScanRecord
	for rows.Next() {
		var r ScanRecord
		if err := rows.Scan(&r.ID, &r.ScanType, &r.InputExcerpt, &r.Verdict, &r.Severity,
			&r.Confidence, &r.RiskScore, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
	}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE severity IN ('high', 'critical')),
		        count(*) FILTER (WHERE created_at >= $1)
		 FROM scan_records`,
		time.Now().UTC().AddDate(0, 0, -7),
	).Scan(&summary.TotalScans, &summary.ThreatScans, &summary.RecentScans7d)
	if err != nil {
		return summary, fmt.Errorf("scan totals: %w", err)
	}

	if err := s.groupCount(ctx, `SELECT scan_type, count(*) FROM scan_records GROUP BY scan_type`, summary.ByType); err != nil {
		return summary, err
	}
	if err := s.groupCount(ctx, `SELECT severity, count(*) FROM scan_records GROUP BY severity`, summary.BySeverity); err != nil {
		return summary, err
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM threat_alerts WHERE NOT acknowledged`,
	).Scan(&summary.OpenAlerts)
	if err != nil {
		return summary, fmt.Errorf("open alerts: %w", err)
	}
	return summary, nil
}

func (s *PostgresStore) groupCount(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("group count: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("group count row: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

func (s *PostgresStore) ListAlerts(ctx context.Context, limit int) ([]ThreatAlert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, scan_record_id, severity, title, message, acknowledged, created_at
		 FROM threat_alerts ORDER BY id DESC LIMIT $1`, limit)
}

func (s *PostgresStore) ListAlertsAfter(ctx context.Context, afterID int64, limit int) ([]ThreatAlert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, scan_record_id, severity, title, message, acknowledged, created_at
		 FROM threat_alerts WHERE id > $1 ORDER BY id ASC LIMIT $2`, afterID, limit)
}

func (s *PostgresStore) queryAlerts(ctx context.Context, query string, args ...any) ([]ThreatAlert, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []ThreatAlert
	for rows.Next() {
		var a ThreatAlert
		if err := rows.Scan(&a.ID, &a.ScanRecordID, &a.Severity, &a.Title, &a.Message,
			&a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("alert row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE threat_alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, report *ThreatReport) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO threat_reports (content_type, content, original_result, comment, is_urgent, reporter_name, report_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		report.ContentType, report.Content, report.OriginalResult, report.Comment,
		report.IsUrgent, report.ReporterName, report.ReportCount, report.Status,
	).Scan(&report.ID, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert threat report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id int64) (*ThreatReport, error) {
	return s.queryReport(ctx,
		`SELECT id, content_type, content, original_result, comment, is_urgent, reporter_name,
		        report_count, status, reviewed_by, reviewed_at, review_notes, added_to_training,
		        created_at, updated_at
		 FROM threat_reports WHERE id = $1`, id)
}

func (s *PostgresStore) GetReportByContent(ctx context.Context, contentType, content string) (*ThreatReport, error) {
	return s.queryReport(ctx,
		`SELECT id, content_type, content, original_result, comment, is_urgent, reporter_name,
		        report_count, status, reviewed_by, reviewed_at, review_notes, added_to_training,
		        created_at, updated_at
		 FROM threat_reports WHERE content_type = $1 AND content = $2`, contentType, content)
}

func (s *PostgresStore) queryReport(ctx context.Context, query string, args ...any) (*ThreatReport, error) {
	r := &ThreatReport{}
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&r.ID, &r.ContentType, &r.Content, &r.OriginalResult, &r.Comment, &r.IsUrgent,
		&r.ReporterName, &r.ReportCount, &r.Status, &r.ReviewedBy, &r.ReviewedAt,
		&r.ReviewNotes, &r.AddedToTraining, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query threat report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) UpdateReport(ctx context.Context, report *ThreatReport) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE threat_reports
		 SET comment = $2, is_urgent = $3, report_count = $4, status = $5,
		     reviewed_by = $6, reviewed_at = $7, review_notes = $8,
		     added_to_training = $9, updated_at = now()
		 WHERE id = $1`,
		report.ID, report.Comment, report.IsUrgent, report.ReportCount, report.Status,
		report.ReviewedBy, report.ReviewedAt, report.ReviewNotes, report.AddedToTraining)
	if err != nil {
		return fmt.Errorf("update threat report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListReports(ctx context.Context, status string, limit int) ([]ThreatReport, error) {
	query := `SELECT id, content_type, content, original_result, comment, is_urgent, reporter_name,
	                 report_count, status, reviewed_by, reviewed_at, review_notes, added_to_training,
	                 created_at, updated_at
	          FROM threat_reports`
	args := []any{limit}
	if status != "" && status != "all" {
		query += ` WHERE status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	return s.queryReports(ctx, query, args...)
}

func (s *PostgresStore) PendingReports(ctx context.Context, limit int) ([]ThreatReport, error) {
	return s.queryReports(ctx,
		`SELECT id, content_type, content, original_result, comment, is_urgent, reporter_name,
		        report_count, status, reviewed_by, reviewed_at, review_notes, added_to_training,
		        created_at, updated_at
		 FROM threat_reports WHERE status = 'pending'
		 ORDER BY is_urgent DESC, report_count DESC, created_at DESC
		 LIMIT $1`, limit)
}

func (s *PostgresStore) queryReports(ctx context.Context, query string, args ...any) ([]ThreatReport, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query threat reports: %w", err)
	}
	defer rows.Close()

	var out []ThreatReport
	for rows.Next() {
		var r ThreatReport
		if err := rows.Scan(&r.ID, &r.ContentType, &r.Content, &r.OriginalResult, &r.Comment,
			&r.IsUrgent, &r.ReporterName, &r.ReportCount, &r.Status, &r.ReviewedBy,
			&r.ReviewedAt, &r.ReviewNotes, &r.AddedToTraining, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("threat report row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReportStats(ctx context.Context) (ReportStats, error) {
	stats := ReportStats{}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE created_at >= $1),
		        count(*) FILTER (WHERE status = 'confirmed'),
		        count(*) FILTER (WHERE status = 'pending')
		 FROM threat_reports`, midnight,
	).Scan(&stats.ReportedToday, &stats.ConfirmedThreats, &stats.UnderReview)
	if err != nil {
		return stats, fmt.Errorf("report stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

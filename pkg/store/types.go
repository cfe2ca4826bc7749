// Package store persists scan history, threat alerts and community threat
// reports. Two implementations exist: Postgres (pgx) for deployments and an
// in-memory store used when no database is configured and by tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Report review statuses. A report starts pending and moves exactly once to
// confirmed or false_positive.
const (
	ReportStatusPending       = "pending"
	ReportStatusConfirmed     = "confirmed"
	ReportStatusFalsePositive = "false_positive"
)

// ScanRecord is one persisted classification outcome.
type ScanRecord struct {
	ID           int64          `json:"id"`
	ScanType     string         `json:"scan_type"`
	InputExcerpt string         `json:"input_excerpt"`
	Verdict      string         `json:"verdict"`
	Severity     string         `json:"severity"`
	Confidence   float64        `json:"confidence"`
	RiskScore    float64        `json:"risk_score"`
	Details      map[string]any `json:"details"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ThreatAlert is raised for high and critical severity scans, one per scan
// record.
type ThreatAlert struct {
	ID           int64     `json:"id"`
	ScanRecordID int64     `json:"scan_record_id"`
	Severity     string    `json:"severity"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

// ThreatReport is a community-submitted report of malicious content,
// deduplicated by (ContentType, Content).
type ThreatReport struct {
	ID             int64          `json:"id"`
	ContentType    string         `json:"contentType"`
	Content        string         `json:"content"`
	OriginalResult map[string]any `json:"originalResult,omitempty"`
	Comment        string         `json:"comment"`
	IsUrgent       bool           `json:"isUrgent"`
	ReporterName   string         `json:"reporter"`
	ReportCount    int            `json:"reportCount"`
	Status         string         `json:"status"`

	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	ReviewNotes     string     `json:"reviewNotes,omitempty"`
	AddedToTraining bool       `json:"addedToTraining"`

	CreatedAt time.Time `json:"reportedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary aggregates scan history for the dashboard.
type Summary struct {
	TotalScans    int            `json:"total_scans"`
	ThreatScans   int            `json:"threat_scans"`
	RecentScans7d int            `json:"recent_scans_7d"`
	OpenAlerts    int            `json:"open_alerts"`
	ByType        map[string]int `json:"by_type"`
	BySeverity    map[string]int `json:"by_severity"`
}

// ReportStats aggregates community report activity.
type ReportStats struct {
	ReportedToday    int `json:"reportedToday"`
	ConfirmedThreats int `json:"confirmedThreats"`
	UnderReview      int `json:"underReview"`
}

// Store is the persistence boundary. All methods are safe for concurrent
// use.
type Store interface {
	// CreateScan persists a scan record and, when alert is non-nil, its
	// alert in the same transaction. IDs and creation times are filled in
	// on success; a failed alert insert rolls back the record.
	CreateScan(ctx context.Context, record *ScanRecord, alert *ThreatAlert) error

	// ListScans returns the most recent scan records, newest first.
	ListScans(ctx context.Context, limit int) ([]ScanRecord, error)

	// Summary aggregates scan and alert counts for the dashboard.
	Summary(ctx context.Context) (Summary, error)

	// ListAlerts returns the most recent alerts, newest first.
	ListAlerts(ctx context.Context, limit int) ([]ThreatAlert, error)

	// ListAlertsAfter returns up to limit alerts with id greater than
	// afterID, ascending by id. This is the stream cursor query.
	ListAlertsAfter(ctx context.Context, afterID int64, limit int) ([]ThreatAlert, error)

	// AcknowledgeAlert marks an alert acknowledged.
	AcknowledgeAlert(ctx context.Context, id int64) error

	// CreateReport persists a new threat report.
	CreateReport(ctx context.Context, report *ThreatReport) error

	// GetReport fetches a report by id.
	GetReport(ctx context.Context, id int64) (*ThreatReport, error)

	// GetReportByContent fetches the report matching the dedup identity,
	// or ErrNotFound.
	GetReportByContent(ctx context.Context, contentType, content string) (*ThreatReport, error)

	// UpdateReport writes back a mutated report.
	UpdateReport(ctx context.Context, report *ThreatReport) error

	// ListReports returns recent reports, newest first, optionally
	// filtered by status ("" or "all" means no filter).
	ListReports(ctx context.Context, status string, limit int) ([]ThreatReport, error)

	// PendingReports returns the review queue: pending reports ordered by
	// urgency, then report count, then recency.
	PendingReports(ctx context.Context, limit int) ([]ThreatReport, error)

	// ReportStats aggregates community report counters.
	ReportStats(ctx context.Context) (ReportStats, error)

	// Close releases the store's resources.
	Close()
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used when no database is configured.
// Data does not survive a restart; the serve log warns about this at
// startup.
type MemoryStore struct {
	mu      sync.RWMutex
	scans   []ScanRecord
	alerts  []ThreatAlert
	reports []ThreatReport

	nextScanID   int64
	nextAlertID  int64
	nextReportID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextScanID: 1, nextAlertID: 1, nextReportID: 1}
}

func (m *MemoryStore) CreateScan(_ context.Context, record *ScanRecord, alert *ThreatAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.nextScanID
	m.nextScanID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.scans = append(m.scans, *record)

	if alert != nil {
		alert.ID = m.nextAlertID
		m.nextAlertID++
		alert.ScanRecordID = record.ID
		if alert.CreatedAt.IsZero() {
			alert.CreatedAt = time.Now().UTC()
		}
		m.alerts = append(m.alerts, *alert)
	}
	return nil
}

func (m *MemoryStore) ListScans(_ context.Context, limit int) ([]ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ScanRecord, 0, limit)
	for i := len(m.scans) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.scans[i])
	}
	return out, nil
}

func (m *MemoryStore) Summary(_ context.Context) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := Summary{
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
	}
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)

	for _, scan := range m.scans {
		summary.TotalScans++
		summary.ByType[scan.ScanType]++
		summary.BySeverity[scan.Severity]++
		if scan.Severity == "high" || scan.Severity == "critical" {
			summary.ThreatScans++
		}
		if scan.CreatedAt.After(weekAgo) {
			summary.RecentScans7d++
		}
	}
	for _, alert := range m.alerts {
		if !alert.Acknowledged {
			summary.OpenAlerts++
		}
	}
	return summary, nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, limit int) ([]ThreatAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ThreatAlert, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

func (m *MemoryStore) ListAlertsAfter(_ context.Context, afterID int64, limit int) ([]ThreatAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ThreatAlert
	for _, alert := range m.alerts {
		if alert.ID > afterID {
			out = append(out, alert)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) AcknowledgeAlert(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreateReport(_ context.Context, report *ThreatReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	report.ID = m.nextReportID
	m.nextReportID++
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	m.reports = append(m.reports, *report)
	return nil
}

func (m *MemoryStore) GetReport(_ context.Context, id int64) (*ThreatReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.reports {
		if m.reports[i].ID == id {
			report := m.reports[i]
			return &report, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetReportByContent(_ context.Context, contentType, content string) (*ThreatReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.reports {
		if m.reports[i].ContentType == contentType && m.reports[i].Content == content {
			report := m.reports[i]
			return &report, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateReport(_ context.Context, report *ThreatReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.reports {
		if m.reports[i].ID == report.ID {
			report.UpdatedAt = time.Now().UTC()
			m.reports[i] = *report
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ListReports(_ context.Context, status string, limit int) ([]ThreatReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ThreatReport, 0, limit)
	for i := len(m.reports) - 1; i >= 0 && len(out) < limit; i-- {
		if status != "" && status != "all" && m.reports[i].Status != status {
			continue
		}
		out = append(out, m.reports[i])
	}
	return out, nil
}

func (m *MemoryStore) PendingReports(_ context.Context, limit int) ([]ThreatReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []ThreatReport
	for _, report := range m.reports {
		if report.Status == ReportStatusPending {
			pending = append(pending, report)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].IsUrgent != pending[j].IsUrgent {
			return pending[i].IsUrgent
		}
		if pending[i].ReportCount != pending[j].ReportCount {
			return pending[i].ReportCount > pending[j].ReportCount
		}
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemoryStore) ReportStats(_ context.Context) (ReportStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ReportStats{}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	for _, report := range m.reports {
		if !report.CreatedAt.Before(midnight) {
			stats.ReportedToday++
		}
		switch report.Status {
		case ReportStatusConfirmed:
			stats.ConfirmedThreats++
		case ReportStatusPending:
			stats.UnderReview++
		}
	}
	return stats, nil
}

func (m *MemoryStore) Close() {}

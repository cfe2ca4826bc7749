package store

import (
	"context"
	"errors"
	"testing"
)

func TestCreateScanLinksAlert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := &ScanRecord{ScanType: "url", Verdict: "MALICIOUS", Severity: "high", RiskScore: 72}
	alert := &ThreatAlert{Severity: "high", Title: "URL Threat Detected", Message: "URL scan flagged MALICIOUS with 72.00% risk."}

	if err := s.CreateScan(ctx, record, alert); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if record.ID == 0 {
		t.Error("record id not assigned")
	}
	if alert.ScanRecordID != record.ID {
		t.Errorf("alert linked to record %d, want %d", alert.ScanRecordID, record.ID)
	}

	alerts, err := s.ListAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
}

func TestCreateScanWithoutAlert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateScan(ctx, &ScanRecord{ScanType: "email", Severity: "low"}, nil); err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	alerts, _ := s.ListAlerts(ctx, 10)
	if len(alerts) != 0 {
		t.Errorf("low severity scan produced %d alerts, want 0", len(alerts))
	}
}

func TestListScansNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, st := range []string{"email", "url", "file"} {
		if err := s.CreateScan(ctx, &ScanRecord{ScanType: st, Severity: "low"}, nil); err != nil {
			t.Fatal(err)
		}
	}

	scans, err := s.ListScans(ctx, 2)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("got %d scans, want 2 (limit)", len(scans))
	}
	if scans[0].ScanType != "file" || scans[1].ScanType != "url" {
		t.Errorf("order wrong: %s, %s", scans[0].ScanType, scans[1].ScanType)
	}
}

func TestListAlertsAfterCursor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record := &ScanRecord{ScanType: "url", Severity: "high"}
		if err := s.CreateScan(ctx, record, &ThreatAlert{Severity: "high", Title: "t", Message: "m"}); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := s.ListAlertsAfter(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListAlertsAfter: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d alerts, want 2", len(batch))
	}
	if batch[0].ID != 3 || batch[1].ID != 4 {
		t.Errorf("ids = %d, %d, want 3, 4 (ascending after cursor)", batch[0].ID, batch[1].ID)
	}

	empty, err := s.ListAlertsAfter(ctx, 5, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("cursor at head returned %d alerts, want 0", len(empty))
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := &ScanRecord{ScanType: "file", Severity: "critical"}
	alert := &ThreatAlert{Severity: "critical", Title: "t", Message: "m"}
	if err := s.CreateScan(ctx, record, alert); err != nil {
		t.Fatal(err)
	}

	if err := s.AcknowledgeAlert(ctx, alert.ID); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}

	alerts, _ := s.ListAlerts(ctx, 1)
	if !alerts[0].Acknowledged {
		t.Error("alert not acknowledged")
	}

	if err := s.AcknowledgeAlert(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestSummary(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cases := []struct {
		scanType string
		severity string
		alert    bool
	}{
		{"email", "low", false},
		{"email", "high", true},
		{"url", "critical", true},
		{"fraud", "medium", false},
	}
	for _, c := range cases {
		var alert *ThreatAlert
		if c.alert {
			alert = &ThreatAlert{Severity: c.severity, Title: "t", Message: "m"}
		}
		if err := s.CreateScan(ctx, &ScanRecord{ScanType: c.scanType, Severity: c.severity}, alert); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalScans != 4 {
		t.Errorf("total = %d, want 4", summary.TotalScans)
	}
	if summary.ThreatScans != 2 {
		t.Errorf("threat scans = %d, want 2", summary.ThreatScans)
	}
	if summary.OpenAlerts != 2 {
		t.Errorf("open alerts = %d, want 2", summary.OpenAlerts)
	}
	if summary.ByType["email"] != 2 || summary.ByType["url"] != 1 {
		t.Errorf("by_type wrong: %v", summary.ByType)
	}
	if summary.BySeverity["critical"] != 1 {
		t.Errorf("by_severity wrong: %v", summary.BySeverity)
	}
}

func TestReportDedupeLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	report := &ThreatReport{
		ContentType: "url", Content: "http://evil.example",
		ReportCount: 1, Status: ReportStatusPending, ReporterName: "Anonymous User",
	}
	if err := s.CreateReport(ctx, report); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	found, err := s.GetReportByContent(ctx, "url", "http://evil.example")
	if err != nil {
		t.Fatalf("GetReportByContent: %v", err)
	}
	if found.ID != report.ID {
		t.Errorf("found id %d, want %d", found.ID, report.ID)
	}

	if _, err := s.GetReportByContent(ctx, "url", "http://other.example"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing content err = %v, want ErrNotFound", err)
	}
}

func TestPendingReportsOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	reports := []*ThreatReport{
		{ContentType: "url", Content: "a", ReportCount: 1, Status: ReportStatusPending},
		{ContentType: "url", Content: "b", ReportCount: 5, Status: ReportStatusPending},
		{ContentType: "url", Content: "c", ReportCount: 2, Status: ReportStatusPending, IsUrgent: true},
		{ContentType: "url", Content: "d", ReportCount: 9, Status: ReportStatusConfirmed},
	}
	for _, r := range reports {
		if err := s.CreateReport(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	queue, err := s.PendingReports(ctx, 10)
	if err != nil {
		t.Fatalf("PendingReports: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("queue length = %d, want 3 (confirmed excluded)", len(queue))
	}
	if queue[0].Content != "c" {
		t.Errorf("urgent report should lead the queue, got %q", queue[0].Content)
	}
	if queue[1].Content != "b" {
		t.Errorf("higher report count should rank second, got %q", queue[1].Content)
	}
}

func TestListReportsStatusFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, status := range []string{ReportStatusPending, ReportStatusConfirmed, ReportStatusPending} {
		if err := s.CreateReport(ctx, &ThreatReport{ContentType: "url", Content: status + "-x", Status: status, ReportCount: 1}); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := s.ListReports(ctx, "all", 10)
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
	confirmed, _ := s.ListReports(ctx, ReportStatusConfirmed, 10)
	if len(confirmed) != 1 {
		t.Errorf("confirmed = %d, want 1", len(confirmed))
	}
}

func TestReportStats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, status := range []string{ReportStatusPending, ReportStatusConfirmed, ReportStatusFalsePositive} {
		if err := s.CreateReport(ctx, &ThreatReport{ContentType: "url", Content: status, Status: status, ReportCount: 1}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.ReportStats(ctx)
	if err != nil {
		t.Fatalf("ReportStats: %v", err)
	}
	if stats.ReportedToday != 3 {
		t.Errorf("reported today = %d, want 3", stats.ReportedToday)
	}
	if stats.ConfirmedThreats != 1 || stats.UnderReview != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

package scan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/artifact"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/features"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/ml"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/store"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	models := ml.NewModelService(artifact.NewCache(t.TempDir(), ""))
	return NewOrchestrator(models, st, NewNoopCache(), DefaultThresholds(), 240), st
}

func TestSeverityBands(t *testing.T) {
	thresholds := DefaultThresholds()
	tests := []struct {
		risk float64
		want string
	}{
		{0, "low"},
		{39.99, "low"},
		{40, "medium"},
		{64.99, "medium"},
		{65, "high"},
		{84.99, "high"},
		{85, "critical"},
		{100, "critical"},
	}

	for _, tt := range tests {
		if got := thresholds.FromRisk(tt.risk); got != tt.want {
			t.Errorf("FromRisk(%v) = %q, want %q", tt.risk, got, tt.want)
		}
	}
}

func TestAlertWorthy(t *testing.T) {
	for severity, want := range map[string]bool{
		"low": false, "medium": false, "high": true, "critical": true,
	} {
		if got := AlertWorthy(severity); got != want {
			t.Errorf("AlertWorthy(%q) = %v, want %v", severity, got, want)
		}
	}
}

func TestScanEmailPersistsRecordAndAlert(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	// Heuristic path (empty model dir): four spam keywords push risk to 72.
	record, err := o.ScanEmail(ctx, "URGENT", "verify your account password right away")
	if err != nil {
		t.Fatalf("ScanEmail: %v", err)
	}
	if record.ID == 0 {
		t.Error("record not persisted")
	}
	if record.Severity != "high" {
		t.Errorf("severity = %q, want high (risk %v)", record.Severity, record.RiskScore)
	}

	alerts, _ := st.ListAlerts(ctx, 10)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want exactly 1", len(alerts))
	}
	alert := alerts[0]
	if alert.ScanRecordID != record.ID {
		t.Errorf("alert linked to %d, want %d", alert.ScanRecordID, record.ID)
	}
	if alert.Title != "EMAIL Threat Detected" {
		t.Errorf("title = %q", alert.Title)
	}
	if !strings.Contains(alert.Message, "SPAM") || !strings.Contains(alert.Message, "% risk.") {
		t.Errorf("message = %q", alert.Message)
	}
}

func TestScanEmailLowRiskNoAlert(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	record, err := o.ScanEmail(ctx, "lunch", "see you at noon by the cafe")
	if err != nil {
		t.Fatalf("ScanEmail: %v", err)
	}
	if record.Severity != "low" {
		t.Errorf("severity = %q, want low", record.Severity)
	}

	alerts, _ := st.ListAlerts(ctx, 10)
	if len(alerts) != 0 {
		t.Errorf("low severity scan raised %d alerts, want 0", len(alerts))
	}
}

func TestExcerptTruncation(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	short := o.Excerpt("hello")
	if short != "hello" {
		t.Errorf("short excerpt = %q", short)
	}

	long := o.Excerpt(strings.Repeat("a", 500))
	if len(long) != 243 {
		t.Errorf("len = %d, want 240 + ellipsis", len(long))
	}
	if !strings.HasSuffix(long, "...") {
		t.Error("truncated excerpt should end with ...")
	}
}

func TestVerdictCacheSkipsSecondInference(t *testing.T) {
	st := store.NewMemoryStore()
	models := ml.NewModelService(artifact.NewCache(t.TempDir(), ""))
	cache := NewLocalCache(time.Minute)
	o := NewOrchestrator(models, st, cache, DefaultThresholds(), 240)
	ctx := context.Background()

	first, err := o.ScanEmail(ctx, "urgent", "wire transfer for your bank account")
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.ScanEmail(ctx, "urgent", "wire transfer for your bank account")
	if err != nil {
		t.Fatal(err)
	}

	if first.RiskScore != second.RiskScore || first.Verdict != second.Verdict {
		t.Errorf("cached verdict differs: %v vs %v", first, second)
	}
	// Both scans persist their own record regardless of the cache hit.
	scans, _ := st.ListScans(ctx, 10)
	if len(scans) != 2 {
		t.Errorf("got %d records, want 2", len(scans))
	}
}

func TestFraudIdentityCoversAllFields(t *testing.T) {
	velocity := 500.0
	base := features.Transaction{Type: "TRANSFER", Amount: 100, Step: 1, NameOrig: "C1", NameDest: "C2"}

	// step shifts hour/is_night, so it must shift the cache key too.
	nightStep := base
	nightStep.Step = 23
	if CacheKey("fraud", fraudIdentity(base)) == CacheKey("fraud", fraudIdentity(nightStep)) {
		t.Error("transactions differing only in step share a cache key")
	}

	withVelocity := base
	withVelocity.OrigVelocityLast24h = &velocity
	if CacheKey("fraud", fraudIdentity(base)) == CacheKey("fraud", fraudIdentity(withVelocity)) {
		t.Error("transactions differing only in velocity share a cache key")
	}

	same := base
	if CacheKey("fraud", fraudIdentity(base)) != CacheKey("fraud", fraudIdentity(same)) {
		t.Error("identical transactions should share a cache key")
	}
}

func TestCacheKeyIdentity(t *testing.T) {
	a := CacheKey("url", []byte("http://x.com"))
	b := CacheKey("url", []byte("http://x.com"))
	c := CacheKey("email", []byte("http://x.com"))
	if a != b {
		t.Error("same modality+content should share a key")
	}
	if a == c {
		t.Error("different modalities must not share keys")
	}
}

func TestSubmitReportDedup(t *testing.T) {
	st := store.NewMemoryStore()
	reports := NewReports(st)
	ctx := context.Background()

	input := ReportInput{
		ContentType:    "url",
		ScanType:       "url",
		Comment:        "looks like phishing",
		OriginalResult: map[string]any{"url": "http://evil.example/login"},
	}

	first, err := reports.Submit(ctx, input)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Deduped {
		t.Error("first submission marked as dedupe")
	}
	if first.Report.ReportCount != 1 || first.Report.Status != store.ReportStatusPending {
		t.Errorf("fresh report = %+v", first.Report)
	}

	input.Comment = "me too"
	input.IsUrgent = true
	second, err := reports.Submit(ctx, input)
	if err != nil {
		t.Fatalf("Submit repeat: %v", err)
	}
	if !second.Deduped {
		t.Error("repeat submission not deduped")
	}
	if second.Report.ID != first.Report.ID {
		t.Errorf("dedupe created a new report: %d vs %d", second.Report.ID, first.Report.ID)
	}
	if second.Report.ReportCount != 2 {
		t.Errorf("report count = %d, want 2", second.Report.ReportCount)
	}
	if !second.Report.IsUrgent {
		t.Error("urgency should escalate")
	}
	if !strings.Contains(second.Report.Comment, "\n\nAdditional report: me too") {
		t.Errorf("comment = %q", second.Report.Comment)
	}
}

func TestSubmitReportValidation(t *testing.T) {
	reports := NewReports(store.NewMemoryStore())
	_, err := reports.Submit(context.Background(), ReportInput{ScanType: "url"})
	if err == nil {
		t.Error("missing content type should be rejected")
	}
}

func TestReviewOneWayTransition(t *testing.T) {
	st := store.NewMemoryStore()
	reports := NewReports(st)
	ctx := context.Background()

	outcome, err := reports.Submit(ctx, ReportInput{
		ContentType:    "url",
		ScanType:       "url",
		OriginalResult: map[string]any{"url": "http://bad.example"},
	})
	if err != nil {
		t.Fatal(err)
	}
	id := outcome.Report.ID

	reviewed, err := reports.Review(ctx, id, ReviewActionConfirm, "analyst-1", "verified against feed")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if reviewed.Status != store.ReportStatusConfirmed {
		t.Errorf("status = %q", reviewed.Status)
	}
	if !reviewed.AddedToTraining {
		t.Error("confirmed report should be flagged for training")
	}
	if reviewed.ReviewedAt == nil || reviewed.ReviewedBy != "analyst-1" {
		t.Errorf("review metadata missing: %+v", reviewed)
	}

	// Second review must be rejected regardless of action.
	if _, err := reports.Review(ctx, id, ReviewActionFalsePositive, "analyst-2", ""); err == nil {
		t.Error("re-review of a resolved report should fail")
	}

	stored, _ := st.GetReport(ctx, id)
	if stored.Status != store.ReportStatusConfirmed {
		t.Errorf("status changed by rejected re-review: %q", stored.Status)
	}
}

func TestReviewUnknownAction(t *testing.T) {
	st := store.NewMemoryStore()
	reports := NewReports(st)
	ctx := context.Background()

	outcome, _ := reports.Submit(ctx, ReportInput{
		ContentType:    "message",
		ScanType:       "message",
		OriginalResult: map[string]any{"message_text": "free prize"},
	})

	if _, err := reports.Review(ctx, outcome.Report.ID, "escalate", "analyst", ""); err == nil {
		t.Error("unknown action should be rejected")
	}
}

func TestStreamerDeliversWithoutReplay(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seed := func(n int) {
		for i := 0; i < n; i++ {
			record := &store.ScanRecord{ScanType: "url", Severity: "high"}
			alert := &store.ThreatAlert{Severity: "high", Title: "t", Message: "m"}
			if err := st.CreateScan(ctx, record, alert); err != nil {
				t.Fatal(err)
			}
		}
	}
	seed(3)

	streamer := NewStreamer(st, 10*time.Millisecond, 20)
	events := streamer.Subscribe(ctx, 1) // alert #1 already seen

	var got []int64
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			if ev.Type == "alert" {
				got = append(got, ev.Alert.ID)
			}
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}

	if got[0] != 2 || got[1] != 3 {
		t.Errorf("ids = %v, want [2 3]", got)
	}

	// New alert arrives later; the stream picks it up without replaying.
	seed(1)
	for {
		select {
		case ev := <-events:
			if ev.Type != "alert" {
				continue
			}
			if ev.Alert.ID != 4 {
				t.Fatalf("replayed or skipped: got id %d, want 4", ev.Alert.ID)
			}
			return
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for new alert")
		}
	}
}

func TestStreamerPingsWhenIdle(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamer := NewStreamer(st, 10*time.Millisecond, 20)
	events := streamer.Subscribe(ctx, 0)

	select {
	case ev := <-events:
		if ev.Type != "ping" {
			t.Errorf("event type = %q, want ping", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat emitted")
	}
}

func TestStreamerStopsOnCancel(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	streamer := NewStreamer(st, 10*time.Millisecond, 20)
	events := streamer.Subscribe(ctx, 0)

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return // channel closed
			}
		case <-deadline:
			t.Fatal("channel not closed after cancellation")
		}
	}
}

func TestHistoryLimitClamp(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := o.ScanEmail(ctx, "hi", "regular note about the meeting"); err != nil {
			t.Fatal(err)
		}
	}

	items, err := o.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("limit 0 should clamp to 1, got %d items", len(items))
	}

	items, err = o.History(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 5 {
		t.Errorf("got %d items, want all 5", len(items))
	}
}

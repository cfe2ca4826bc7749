package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/features"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/ml"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/store"
)

// Orchestrator runs the full scan path: classify, band severity, persist
// the record and raise an alert for high and critical outcomes. The record
// and its alert commit in one transaction; a persistence failure fails the
// whole scan.
type Orchestrator struct {
	models     *ml.ModelService
	store      store.Store
	cache      VerdictCache
	thresholds Thresholds
	excerptLen int
}

// NewOrchestrator wires the scan pipeline together. cache may be a noop
// cache when memoization is disabled.
func NewOrchestrator(models *ml.ModelService, st store.Store, cache VerdictCache, thresholds Thresholds, excerptLen int) *Orchestrator {
	if excerptLen <= 0 {
		excerptLen = 240
	}
	return &Orchestrator{
		models:     models,
		store:      st,
		cache:      cache,
		thresholds: thresholds,
		excerptLen: excerptLen,
	}
}

// Excerpt truncates input to the configured excerpt length, appending "..."
// when cut.
func (o *Orchestrator) Excerpt(value string) string {
	text := strings.TrimSpace(value)
	if len(text) <= o.excerptLen {
		return text
	}
	return text[:o.excerptLen] + "..."
}

// persist saves the scan record and, for alert-worthy severities, the alert
// derived from it.
func (o *Orchestrator) persist(ctx context.Context, scanType, input string, verdict ml.Verdict) (*store.ScanRecord, error) {
	severity := o.thresholds.FromRisk(verdict.RiskScore)

	record := &store.ScanRecord{
		ScanType:     scanType,
		InputExcerpt: o.Excerpt(input),
		Verdict:      verdict.Verdict,
		Severity:     severity,
		Confidence:   verdict.Confidence,
		RiskScore:    verdict.RiskScore,
		Details:      verdict.Details,
	}

	var alert *store.ThreatAlert
	if AlertWorthy(severity) {
		upper := strings.ToUpper(scanType)
		alert = &store.ThreatAlert{
			Severity: severity,
			Title:    fmt.Sprintf("%s Threat Detected", upper),
			Message:  fmt.Sprintf("%s scan flagged %s with %.2f%% risk.", upper, verdict.Verdict, verdict.RiskScore),
		}
	}

	if err := o.store.CreateScan(ctx, record, alert); err != nil {
		return nil, fmt.Errorf("persist scan: %w", err)
	}
	if alert != nil {
		log.Printf("[SCAN] %s alert #%d raised (%s, %.2f%% risk)", scanType, alert.ID, severity, verdict.RiskScore)
	}
	return record, nil
}

// scoreCached runs predict through the verdict cache.
func (o *Orchestrator) scoreCached(ctx context.Context, modality string, content []byte, predict func() (ml.Verdict, error)) (ml.Verdict, error) {
	key := CacheKey(modality, content)
	if verdict, ok := o.cache.Get(ctx, key); ok {
		return verdict, nil
	}

	verdict, err := predict()
	if err != nil {
		return ml.Verdict{}, err
	}
	o.cache.Set(ctx, key, verdict)
	return verdict, nil
}

// ScanEmail classifies and persists an email scan.
func (o *Orchestrator) ScanEmail(ctx context.Context, subject, message string) (*store.ScanRecord, error) {
	content := subject + "\n" + message
	verdict, err := o.scoreCached(ctx, "email", []byte(content), func() (ml.Verdict, error) {
		return o.models.PredictEmail(subject, message)
	})
	if err != nil {
		return nil, err
	}
	return o.persist(ctx, "email", content, verdict)
}

// ScanMessage classifies and persists a short-message scan.
func (o *Orchestrator) ScanMessage(ctx context.Context, text string) (*store.ScanRecord, error) {
	verdict, err := o.scoreCached(ctx, "message", []byte(text), func() (ml.Verdict, error) {
		return o.models.PredictMessage(text)
	})
	if err != nil {
		return nil, err
	}
	return o.persist(ctx, "message", text, verdict)
}

// ScanURL classifies and persists a URL scan.
func (o *Orchestrator) ScanURL(ctx context.Context, url string) (*store.ScanRecord, error) {
	verdict, err := o.scoreCached(ctx, "url", []byte(url), func() (ml.Verdict, error) {
		return o.models.PredictURL(url)
	})
	if err != nil {
		return nil, err
	}
	return o.persist(ctx, "url", url, verdict)
}

// ScanFile classifies and persists a file scan. The excerpt is the
// filename; the binary itself is never stored.
func (o *Orchestrator) ScanFile(ctx context.Context, fileBytes []byte, filename string) (*store.ScanRecord, error) {
	verdict, err := o.scoreCached(ctx, "file", fileBytes, func() (ml.Verdict, error) {
		return o.models.PredictFile(fileBytes, filename)
	})
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = "uploaded_file"
	}
	return o.persist(ctx, "file", filename, verdict)
}

// fraudIdentity is the cache identity of a transaction: the full marshaled
// struct, so any field that shifts a feature also shifts the key.
func fraudIdentity(tx features.Transaction) []byte {
	identity, _ := json.Marshal(tx)
	return identity
}

// ScanFraud classifies and persists a transaction scan. The excerpt is a
// compact JSON summary of the transaction identity.
func (o *Orchestrator) ScanFraud(ctx context.Context, tx features.Transaction) (*store.ScanRecord, error) {
	excerpt, _ := json.Marshal(map[string]any{
		"type":     tx.Type,
		"amount":   tx.Amount,
		"nameOrig": tx.NameOrig,
		"nameDest": tx.NameDest,
	})

	verdict, err := o.scoreCached(ctx, "fraud", fraudIdentity(tx), func() (ml.Verdict, error) {
		return o.models.PredictFraud(tx)
	})
	if err != nil {
		return nil, err
	}
	return o.persist(ctx, "fraud", string(excerpt), verdict)
}

// History returns recent scan records, clamping limit to [1, 200].
func (o *Orchestrator) History(ctx context.Context, limit int) ([]store.ScanRecord, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	return o.store.ListScans(ctx, limit)
}

// Summary returns the dashboard aggregates.
func (o *Orchestrator) Summary(ctx context.Context) (store.Summary, error) {
	return o.store.Summary(ctx)
}

// Alerts returns the most recent alerts (at most 100).
func (o *Orchestrator) Alerts(ctx context.Context) ([]store.ThreatAlert, error) {
	return o.store.ListAlerts(ctx, 100)
}

// AcknowledgeAlert marks an alert acknowledged.
func (o *Orchestrator) AcknowledgeAlert(ctx context.Context, id int64) error {
	return o.store.AcknowledgeAlert(ctx, id)
}

// ModelStatus reports per-modality artifact availability.
func (o *Orchestrator) ModelStatus() map[string]any {
	return o.models.Status()
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/store"
)

// Review actions accepted by ReviewReport.
const (
	ReviewActionConfirm       = "confirm"
	ReviewActionFalsePositive = "mark_false_positive"
)

// ErrInvalidReport marks a threat report submission or review that cannot
// be processed.
var ErrInvalidReport = errors.New("invalid threat report")

// ReportInput is a community threat report submission.
type ReportInput struct {
	ContentType    string         `json:"contentType"`
	ScanType       string         `json:"scanType"`
	Comment        string         `json:"comment"`
	IsUrgent       bool           `json:"isUrgent"`
	OriginalResult map[string]any `json:"originalResult"`
	ReporterName   string         `json:"reporter"`
}

// ReportOutcome describes what a submission did: created a fresh report or
// folded into an existing one.
type ReportOutcome struct {
	Report  *store.ThreatReport
	Deduped bool
}

// Reports manages community threat reports: dedup on submission and the
// admin review workflow.
type Reports struct {
	store store.Store
}

// NewReports creates the report service.
func NewReports(st store.Store) *Reports {
	return &Reports{store: st}
}

// reportContent derives the dedup content string from the submission's
// original scan result, per scan type.
func reportContent(scanType string, original map[string]any) string {
	str := func(key string) string {
		if v, ok := original[key].(string); ok {
			return v
		}
		return ""
	}

	switch scanType {
	case "url":
		return str("url")
	case "email":
		subject := str("subject")
		if subject == "" {
			return ""
		}
		content := "Subject: " + subject
		if message := str("message"); message != "" {
			content += "\n" + message
		}
		return content
	case "message":
		return str("message_text")
	case "file":
		return str("filename")
	}
	return ""
}

// Submit records a threat report. A repeat of an already-reported
// (contentType, content) pair increments the existing report instead of
// creating a duplicate: report_count goes up, urgency only ever escalates
// and the new comment is appended.
func (r *Reports) Submit(ctx context.Context, input ReportInput) (*ReportOutcome, error) {
	if input.ContentType == "" {
		return nil, fmt.Errorf("%w: content type is required", ErrInvalidReport)
	}
	content := reportContent(input.ScanType, input.OriginalResult)

	existing, err := r.store.GetReportByContent(ctx, input.ContentType, content)
	switch {
	case err == nil:
		existing.ReportCount++
		if input.IsUrgent {
			existing.IsUrgent = true
		}
		if input.Comment != "" {
			existing.Comment = existing.Comment + "\n\nAdditional report: " + input.Comment
		}
		if err := r.store.UpdateReport(ctx, existing); err != nil {
			return nil, fmt.Errorf("update report: %w", err)
		}
		log.Printf("[REPORT] Duplicate threat report folded into #%d (count %d)", existing.ID, existing.ReportCount)
		return &ReportOutcome{Report: existing, Deduped: true}, nil

	case errors.Is(err, store.ErrNotFound):
		reporter := input.ReporterName
		if reporter == "" {
			reporter = "Anonymous User"
		}
		report := &store.ThreatReport{
			ContentType:    input.ContentType,
			Content:        content,
			OriginalResult: input.OriginalResult,
			Comment:        input.Comment,
			IsUrgent:       input.IsUrgent,
			ReporterName:   reporter,
			ReportCount:    1,
			Status:         store.ReportStatusPending,
		}
		if err := r.store.CreateReport(ctx, report); err != nil {
			return nil, fmt.Errorf("create report: %w", err)
		}
		return &ReportOutcome{Report: report}, nil

	default:
		return nil, fmt.Errorf("lookup report: %w", err)
	}
}

// Community returns the public threat feed with its stats.
func (r *Reports) Community(ctx context.Context, status string, limit int) ([]store.ThreatReport, store.ReportStats, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	reports, err := r.store.ListReports(ctx, status, limit)
	if err != nil {
		return nil, store.ReportStats{}, err
	}
	stats, err := r.store.ReportStats(ctx)
	if err != nil {
		return nil, store.ReportStats{}, err
	}
	return reports, stats, nil
}

// ReviewQueue returns pending reports ordered by urgency, report count and
// recency.
func (r *Reports) ReviewQueue(ctx context.Context) ([]store.ThreatReport, error) {
	return r.store.PendingReports(ctx, 20)
}

// Review resolves a pending report. The transition is one-way: a report
// that has already been reviewed cannot be reviewed again. Confirmed
// reports are flagged for training export.
func (r *Reports) Review(ctx context.Context, id int64, action, reviewer, notes string) (*store.ThreatReport, error) {
	report, err := r.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != store.ReportStatusPending {
		return nil, fmt.Errorf("%w: report %d already reviewed (%s)", ErrInvalidReport, id, report.Status)
	}

	now := time.Now().UTC()
	switch action {
	case ReviewActionConfirm:
		report.Status = store.ReportStatusConfirmed
		report.AddedToTraining = true
	case ReviewActionFalsePositive:
		report.Status = store.ReportStatusFalsePositive
	default:
		return nil, fmt.Errorf("%w: unknown review action %q", ErrInvalidReport, action)
	}
	report.ReviewedBy = reviewer
	report.ReviewedAt = &now
	report.ReviewNotes = notes

	if err := r.store.UpdateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	log.Printf("[REPORT] Report #%d marked %s", report.ID, report.Status)
	return report, nil
}

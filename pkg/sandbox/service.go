package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Statuses assigned from the merged risk score.
const (
	StatusSafe       = "safe"
	StatusSuspicious = "suspicious"
	StatusMalicious  = "malicious"
)

// AnalysisReport is the full outcome of a sandbox analysis.
type AnalysisReport struct {
	AnalysisID      string       `json:"analysis_id"`
	Status          string       `json:"status"`
	RiskScore       int          `json:"risk_score"`
	ThreatType      string       `json:"threat_type"`
	Explanation     string       `json:"explanation"`
	StaticAnalysis  StageResult  `json:"static_analysis"`
	DynamicAnalysis *StageResult `json:"dynamic_analysis,omitempty"`
	MLAnalysis      StageResult  `json:"ml_analysis"`
	URLAnalysis     []URLResult  `json:"url_analysis,omitempty"`
	FileHash        string       `json:"file_hash,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Service runs isolated analyses. Each call gets its own scratch directory,
// removed unconditionally when the analysis finishes, and concurrent
// analyses are bounded by a fixed slot pool.
type Service struct {
	slots         chan struct{}
	maxFileBytes  int64
	workspaceRoot string
}

// NewService creates a sandbox service. maxConcurrent bounds simultaneous
// analyses; maxFileBytes is the oversize threshold for the static file
// stage.
func NewService(maxConcurrent int, maxFileBytes int64) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		slots:        make(chan struct{}, maxConcurrent),
		maxFileBytes: maxFileBytes,
	}
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() {
	<-s.slots
}

// newWorkspace creates the per-analysis scratch directory.
func (s *Service) newWorkspace(analysisID string) (string, error) {
	root := s.workspaceRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "scamdefender_"+analysisID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create sandbox workspace: %w", err)
	}
	return dir, nil
}

// safeStage runs one stage, converting a panic into a degraded result with
// the stage's neutral score. A single stage failure never aborts the
// analysis.
func safeStage(name string, neutralScore int, fn func() StageResult) (result StageResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SANDBOX] %s stage failed: %v", name, r)
			result = StageResult{
				RiskScore:  neutralScore,
				Indicators: []string{fmt.Sprintf("Analysis error: %v", r)},
				Degraded:   true,
			}
		}
	}()
	return fn()
}

// mergeScores is the stage reducer: floor of the mean, clamped to [0, 100].
func mergeScores(scores ...int) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return clampScore(sum / len(scores))
}

// statusFor bands a merged risk score.
func statusFor(riskScore int) string {
	switch {
	case riskScore < 30:
		return StatusSafe
	case riskScore < 70:
		return StatusSuspicious
	default:
		return StatusMalicious
	}
}

// threatTypeFor infers the threat label from the merged score and the fired
// indicators.
func threatTypeFor(riskScore int, indicators []string) string {
	if riskScore >= 70 {
		for _, ind := range indicators {
			lower := strings.ToLower(ind)
			if strings.Contains(lower, "executable") {
				return "malware"
			}
			if strings.Contains(lower, "script") {
				return "script_malware"
			}
		}
		return "malicious"
	}
	if riskScore >= 40 {
		return "phishing"
	}
	if riskScore >= 25 {
		return "scam"
	}
	return "suspicious"
}

// explain builds the human-readable summary: a risk band phrase followed by
// up to three indicators per stage, joined with "; ".
func explain(riskScore int, stages ...[]string) string {
	var lead string
	switch {
	case riskScore >= 70:
		lead = "High-risk indicators detected"
	case riskScore >= 40:
		lead = "Suspicious patterns identified"
	case riskScore >= 25:
		lead = "Potentially risky content"
	default:
		lead = "Low-risk indicators detected"
	}

	parts := []string{lead}
	for _, indicators := range stages {
		limit := len(indicators)
		if limit > 3 {
			limit = 3
		}
		parts = append(parts, indicators[:limit]...)
	}
	return strings.Join(parts, "; ")
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AnalyzeEmail runs the static and ML stages over an email and scores each
// embedded URL individually.
func (s *Service) AnalyzeEmail(ctx context.Context, content string, headers map[string]string) (*AnalysisReport, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	analysisID := "email_" + uuid.NewString()
	workspace, err := s.newWorkspace(analysisID)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, "message.eml"), []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("stage email: %w", err)
	}

	static := safeStage("static", staticFailureScore, func() StageResult {
		return staticEmailStage(content, headers)
	})
	mlResult := safeStage("ml", 0, func() StageResult {
		return mlEmailStage(content)
	})

	var urlResults []URLResult
	for _, u := range extractURLs(content) {
		urlResults = append(urlResults, analyzeURL(u))
	}

	riskScore := mergeScores(static.RiskScore, mlResult.RiskScore)
	report := &AnalysisReport{
		AnalysisID:     analysisID,
		Status:         statusFor(riskScore),
		RiskScore:      riskScore,
		ThreatType:     threatTypeFor(riskScore, combineIndicators(static, mlResult)),
		Explanation:    explain(riskScore, static.Indicators, mlResult.Indicators),
		StaticAnalysis: static,
		MLAnalysis:     mlResult,
		URLAnalysis:    urlResults,
		Timestamp:      time.Now().UTC(),
	}
	log.Printf("[SANDBOX] %s finished: %s (risk %d)", analysisID, report.Status, riskScore)
	return report, nil
}

// AnalyzeFile runs the static, dynamic and ML stages over a file. The file
// bytes are staged into the scratch workspace for the duration of the
// analysis and removed with it.
func (s *Service) AnalyzeFile(ctx context.Context, data []byte, filename string) (*AnalysisReport, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if filename == "" {
		filename = "uploaded_file"
	}

	analysisID := "file_" + uuid.NewString()
	workspace, err := s.newWorkspace(analysisID)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workspace)

	staged := filepath.Join(workspace, filepath.Base(filename))
	if err := os.WriteFile(staged, data, 0o600); err != nil {
		return nil, fmt.Errorf("stage file: %w", err)
	}

	static := safeStage("static", staticFailureScore, func() StageResult {
		return staticFileStage(filename, data, s.maxFileBytes)
	})
	dynamic := safeStage("dynamic", dynamicFailureScore, func() StageResult {
		return dynamicFileStage(filename)
	})
	mlResult := safeStage("ml", 0, func() StageResult {
		return mlFileStage(filename)
	})

	riskScore := mergeScores(static.RiskScore, dynamic.RiskScore, mlResult.RiskScore)
	report := &AnalysisReport{
		AnalysisID:      analysisID,
		Status:          statusFor(riskScore),
		RiskScore:       riskScore,
		ThreatType:      threatTypeFor(riskScore, combineIndicators(static, dynamic, mlResult)),
		Explanation:     explain(riskScore, static.Indicators, dynamic.Indicators, mlResult.Indicators),
		StaticAnalysis:  static,
		DynamicAnalysis: &dynamic,
		MLAnalysis:      mlResult,
		FileHash:        hashBytes(data),
		Timestamp:       time.Now().UTC(),
	}
	log.Printf("[SANDBOX] %s finished: %s (risk %d, %s)", analysisID, report.Status, riskScore, report.ThreatType)
	return report, nil
}

func combineIndicators(stages ...StageResult) []string {
	var all []string
	for _, stage := range stages {
		all = append(all, stage.Indicators...)
	}
	return all
}

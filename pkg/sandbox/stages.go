// Package sandbox performs multi-stage isolation analysis of emails and
// files: static signatures, a simulated dynamic stage and a lightweight ML
// keyword stage, merged into one risk score. Stage failures never abort an
// analysis; a failed stage contributes a neutral score and an error
// indicator.
package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/patterns"
)

// Neutral scores substituted when a stage fails outright.
const (
	staticFailureScore  = 50
	dynamicFailureScore = 25
	maxStageScore       = 100
)

// StageResult is the outcome of a single analysis stage. Degraded marks a
// stage that failed and was replaced by its neutral score.
type StageResult struct {
	RiskScore  int            `json:"risk_score"`
	Indicators []string       `json:"indicators"`
	Degraded   bool           `json:"degraded,omitempty"`
	Extra      map[string]any `json:"-"`
}

// URLResult is the per-URL verdict inside an email analysis.
type URLResult struct {
	URL        string   `json:"url"`
	RiskScore  int      `json:"risk_score"`
	Indicators []string `json:"indicators"`
}

var urlExtractPattern = regexp.MustCompile(`(?i)https?://[^\s<>"')]+`)

// extractURLs pulls deduplicated URLs out of free text, preserving first
// occurrence order.
func extractURLs(content string) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, u := range urlExtractPattern.FindAllString(content, -1) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}

// senderDomain extracts the domain part of a From header value.
func senderDomain(from string) string {
	s := from
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	if lt := strings.Index(s, "<"); lt >= 0 {
		s = s[:lt]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ">"))
}

// staticEmailStage scores an email on sender reputation, phishing
// language, embedded URLs and attachment mentions.
func staticEmailStage(content string, headers map[string]string) StageResult {
	registry := patterns.Get()
	score := 0
	var indicators []string

	if from, ok := headers["From"]; ok && from != "" {
		if registry.MatchAny(strings.ToLower(senderDomain(from)), patterns.CategorySuspiciousSender) != nil {
			score += 20
			indicators = append(indicators, "Suspicious sender domain")
		}
	}

	for _, p := range registry.MatchAll(content, patterns.CategoryPhishingLanguage) {
		score += p.Severity
		indicators = append(indicators, "Phishing pattern detected: "+p.Description)
	}

	for _, u := range extractURLs(content) {
		if registry.MatchAny(strings.ToLower(u), patterns.CategorySuspiciousURL) != nil {
			score += 15
			indicators = append(indicators, "Suspicious URL: "+u)
		}
	}

	if strings.Contains(strings.ToLower(content), "attachment") {
		score += 10
		indicators = append(indicators, "Email contains attachments")
	}

	return StageResult{
		RiskScore:  clampScore(score),
		Indicators: indicators,
		Extra:      map[string]any{"content_type": detectContentType(content)},
	}
}

// analyzeURL scores a single extracted URL.
func analyzeURL(url string) URLResult {
	registry := patterns.Get()
	lower := strings.ToLower(url)
	score := 0
	var indicators []string

	if registry.MatchAny(lower, patterns.CategoryShortener) != nil {
		score += 10
		indicators = append(indicators, "URL shortener detected")
	}
	if registry.MatchAny(lower, patterns.CategorySuspiciousURL) != nil {
		score += 20
		indicators = append(indicators, "Suspicious domain detected")
	}
	if !strings.HasPrefix(lower, "https://") {
		score += 5
		indicators = append(indicators, "Non-HTTPS URL")
	}

	return URLResult{URL: url, RiskScore: clampScore(score), Indicators: indicators}
}

// mlEmailStage is the keyword-based scoring stage: 5 points per matched
// scam keyword, capped at 50.
func mlEmailStage(content string) StageResult {
	hits := len(patterns.Get().MatchAll(content, patterns.CategoryScamKeyword))
	score := hits * 5
	if score > 50 {
		score = 50
	}
	return StageResult{
		RiskScore: score,
		Extra: map[string]any{
			"method":     "keyword_heuristic",
			"confidence": 0.6,
		},
	}
}

// staticFileStage scores a file on extension signatures, macro-capable
// document detection and size.
func staticFileStage(filename string, data []byte, oversizeBytes int64) StageResult {
	registry := patterns.Get()
	lower := strings.ToLower(filename)
	score := 0
	var indicators []string

	if registry.MatchAny(lower, patterns.CategoryExecutableFile) != nil {
		score += 40
		indicators = append(indicators, "Executable file detected")
	}
	if registry.MatchAny(lower, patterns.CategoryScriptFile) != nil {
		score += 30
		indicators = append(indicators, "Script file detected")
	}
	if registry.MatchAny(lower, patterns.CategoryMacroDocument) != nil && isOLECompound(data) {
		score += 35
		indicators = append(indicators, "Office document with potential macros")
	}
	if oversizeBytes > 0 && int64(len(data)) > oversizeBytes {
		score += 15
		indicators = append(indicators, fmt.Sprintf("Large file: %.1fMB", float64(len(data))/(1024*1024)))
	}

	return StageResult{
		RiskScore:  clampScore(score),
		Indicators: indicators,
		Extra: map[string]any{
			"file_type": sniffFileType(data),
			"file_size": len(data),
		},
	}
}

// dynamicFileStage is the behavioral simulation stage. Real execution
// monitoring runs outside this process; here only filename heuristics
// contribute.
func dynamicFileStage(filename string) StageResult {
	score := 0
	var indicators []string

	if patterns.Get().MatchAny(strings.ToLower(filename), patterns.CategoryDangerousFilename) != nil {
		score += 20
		indicators = append(indicators, "Suspicious filename pattern")
	}

	return StageResult{
		RiskScore:  clampScore(score),
		Indicators: indicators,
		Extra:      map[string]any{"analysis_type": "dynamic_simulation"},
	}
}

// mlFileStage is the extension-based scoring stage.
func mlFileStage(filename string) StageResult {
	lower := strings.ToLower(filename)
	score := 0
	for _, ext := range []string{".exe", ".bat", ".scr", ".vbs", ".js", ".jar"} {
		if strings.HasSuffix(lower, ext) {
			score = 30
			break
		}
	}
	return StageResult{
		RiskScore: clampScore(score),
		Extra: map[string]any{
			"method":     "extension_heuristic",
			"confidence": 0.5,
		},
	}
}

// isOLECompound reports whether data starts with the OLE compound file
// magic, the container used by legacy macro-capable Office formats.
func isOLECompound(data []byte) bool {
	magic := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	if len(data) < len(magic) {
		return false
	}
	for i, b := range magic {
		if data[i] != b {
			return false
		}
	}
	return true
}

// sniffFileType is a coarse content-type guess from magic bytes.
func sniffFileType(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 'M' && data[1] == 'Z':
		return "PE executable"
	case isOLECompound(data):
		return "OLE compound document"
	case len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04:
		return "ZIP archive"
	case len(data) >= 4 && data[0] == 0x7F && data[1] == 'E' && data[2] == 'L' && data[3] == 'F':
		return "ELF executable"
	default:
		return "Unknown"
	}
}

// detectContentType classifies email body content.
func detectContentType(content string) string {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "html") {
		return "html"
	}
	for _, word := range []string{"unsubscribe", "marketing", "promotion"} {
		if strings.Contains(lower, word) {
			return "marketing"
		}
	}
	return "text"
}

func clampScore(score int) int {
	if score > maxStageScore {
		return maxStageScore
	}
	if score < 0 {
		return 0
	}
	return score
}

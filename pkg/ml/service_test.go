package ml

import (
	"errors"
	"math"
	"testing"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/artifact"
)

// newTestService returns a service over an empty model directory, so every
// artifact load fails and only the fallback paths run.
func newTestService(t *testing.T) *ModelService {
	t.Helper()
	return NewModelService(artifact.NewCache(t.TempDir(), ""))
}

func TestHeuristicEmailScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"no keywords", "see you at the standup tomorrow", 0},
		{"one keyword", "please check your bank statement", 0.18},
		{"two keywords", "urgent: your bank needs you", 0.36},
		{"capped at 0.95", "urgent verify account password wire transfer bank claim prize won bitcoin gift card suspended login now", 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := heuristicEmailScore(tt.text)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("heuristicEmailScore(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPredictEmailHeuristicFallback(t *testing.T) {
	svc := newTestService(t)

	t.Run("empty input rejected", func(t *testing.T) {
		_, err := svc.PredictEmail("", "   ")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("spam verdict from heuristic", func(t *testing.T) {
		v, err := svc.PredictEmail("URGENT", "verify your account password now, claim prize!")
		if err != nil {
			t.Fatalf("PredictEmail: %v", err)
		}
		if v.Verdict != "SPAM" {
			t.Errorf("verdict = %q, want SPAM", v.Verdict)
		}
		if v.Details["source"] != "heuristic" {
			t.Errorf("source = %v, want heuristic", v.Details["source"])
		}
		if v.RiskScore != round2(v.Details["spam_probability"].(float64)*100) {
			t.Errorf("risk score %v does not mirror spam probability %v", v.RiskScore, v.Details["spam_probability"])
		}
	})

	t.Run("ham verdict mirrors confidence", func(t *testing.T) {
		v, err := svc.PredictEmail("lunch", "want to grab lunch on friday?")
		if err != nil {
			t.Fatalf("PredictEmail: %v", err)
		}
		if v.Verdict != "HAM" {
			t.Errorf("verdict = %q, want HAM", v.Verdict)
		}
		spamProb := v.Details["spam_probability"].(float64)
		if math.Abs(v.Confidence-(1.0-spamProb)) > 1e-4 {
			t.Errorf("confidence %v should mirror 1-p = %v", v.Confidence, 1.0-spamProb)
		}
	})
}

func TestPredictMessageSurfacesArtifactError(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.PredictMessage(""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty message err = %v, want ErrInvalidInput", err)
	}

	_, err := svc.PredictMessage("you have won a prize")
	if !errors.Is(err, ErrArtifactUnavailable) {
		t.Errorf("err = %v, want ErrArtifactUnavailable (no fallback for messages)", err)
	}
}

func TestPredictURLValidation(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.PredictURL("   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank url err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.PredictURL("http://example.com"); !errors.Is(err, ErrArtifactUnavailable) {
		t.Errorf("err = %v, want ErrArtifactUnavailable", err)
	}
}

func TestPredictFileNonPEShortCircuit(t *testing.T) {
	// Model dir is empty, so reaching the classifiers would fail. A non-PE
	// payload must come back scored without any artifact load.
	svc := newTestService(t)

	t.Run("empty bytes rejected", func(t *testing.T) {
		_, err := svc.PredictFile(nil, "empty.bin")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("non-pe verdict", func(t *testing.T) {
		v, err := svc.PredictFile([]byte("just a text file"), "notes.txt")
		if err != nil {
			t.Fatalf("PredictFile: %v", err)
		}
		if v.Verdict != "NOT_PE_OR_INVALID" {
			t.Errorf("verdict = %q, want NOT_PE_OR_INVALID", v.Verdict)
		}
		if v.Confidence != 1.0 || v.RiskScore != 10.0 {
			t.Errorf("confidence/risk = %v/%v, want 1.0/10.0", v.Confidence, v.RiskScore)
		}
		if v.Details["filename"] != "notes.txt" {
			t.Errorf("filename detail = %v", v.Details["filename"])
		}
	})
}

func TestBinaryVerdictConstruction(t *testing.T) {
	tests := []struct {
		name           string
		prob           float64
		wantVerdict    string
		wantConfidence float64
		wantRisk       float64
	}{
		{"clear positive", 0.9, "FRAUD", 0.9, 90},
		{"boundary positive", 0.5, "FRAUD", 0.5, 50},
		{"clear negative", 0.1, "LEGIT", 0.9, 10},
		{"rounding", 0.123456789, "LEGIT", 0.8765, 12.35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newBinaryVerdict(tt.prob, "FRAUD", "LEGIT", nil)
			if v.Verdict != tt.wantVerdict {
				t.Errorf("verdict = %q, want %q", v.Verdict, tt.wantVerdict)
			}
			if v.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", v.Confidence, tt.wantConfidence)
			}
			if v.RiskScore != tt.wantRisk {
				t.Errorf("risk = %v, want %v", v.RiskScore, tt.wantRisk)
			}
		})
	}
}

func TestEnsembleMean(t *testing.T) {
	// The file verdict's risk score must equal the mean of the two model
	// probabilities scaled to 100.
	xgb, rf := 0.8, 0.6
	ensemble := (xgb + rf) / 2.0
	v := newBinaryVerdict(ensemble, "MALWARE", "GOODWARE", nil)
	if v.RiskScore != 70 {
		t.Errorf("risk = %v, want 70", v.RiskScore)
	}
	if v.Verdict != "MALWARE" {
		t.Errorf("verdict = %q, want MALWARE", v.Verdict)
	}
}

func TestArgmax(t *testing.T) {
	if got := argmax([]float32{0.1, 0.7, 0.2}); got != 1 {
		t.Errorf("argmax = %d, want 1", got)
	}
	if got := argmax([]float32{0.5, 0.5}); got != 0 {
		t.Errorf("tie should resolve to first index, got %d", got)
	}
}

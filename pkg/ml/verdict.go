package ml

import "math"

// Verdict is the normalized classification result shared by every modality.
// RiskScore is always the positive-class probability scaled to 0-100;
// Confidence is the probability of whichever class the verdict names.
type Verdict struct {
	Verdict    string         `json:"verdict"`
	Confidence float64        `json:"confidence"`
	RiskScore  float64        `json:"risk_score"`
	Details    map[string]any `json:"details"`
}

// newBinaryVerdict builds a Verdict from a positive-class probability and
// the two verdict labels, applying the standard rounding: confidence to 4
// decimals, risk score to 2.
func newBinaryVerdict(prob float64, positive, negative string, details map[string]any) Verdict {
	verdict := negative
	confidence := 1.0 - prob
	if prob >= 0.5 {
		verdict = positive
		confidence = prob
	}
	return Verdict{
		Verdict:    verdict,
		Confidence: round4(confidence),
		RiskScore:  round2(prob * 100.0),
		Details:    details,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round6(v float64) float64 { return math.Round(v*1000000) / 1000000 }

// positiveProb extracts the positive-class probability from a binary
// classifier's probability output: index 1 when two classes are present,
// otherwise the sole value.
func positiveProb(probs []float32) float64 {
	if len(probs) > 1 {
		return float64(probs[1])
	}
	if len(probs) == 1 {
		return float64(probs[0])
	}
	return 0
}

// argmax returns the index of the largest probability. Ties resolve to the
// earliest index.
func argmax(probs []float32) int {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best
}

// Package ml scores untrusted inputs through the trained per-modality
// classifiers and normalizes every result into a Verdict. The email modality
// degrades to a keyword heuristic when its model is unavailable; all other
// modalities surface ErrArtifactUnavailable.
package ml

import (
	"fmt"
	"log"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/artifact"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/features"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/patterns"
)

// Default URL class labels used when the artifact manifest carries none and
// the model emits four classes, matching the trained label order.
var defaultURLLabels = []string{"benign", "defacement", "malware", "phishing"}

// ModelService runs classification for all five modalities against the
// artifact cache. Safe for concurrent use.
type ModelService struct {
	artifacts *artifact.Cache
}

// NewModelService creates a model service over the given artifact cache.
func NewModelService(artifacts *artifact.Cache) *ModelService {
	return &ModelService{artifacts: artifacts}
}

// Status reports per-modality artifact availability.
func (s *ModelService) Status() map[string]any {
	return s.artifacts.Status()
}

// heuristicEmailScore is the fallback spam score used when the email model
// cannot run: 0.18 per matched spam keyword, capped at 0.95 so the
// heuristic never claims certainty.
func heuristicEmailScore(text string) float64 {
	hits := len(patterns.Get().MatchAll(text, patterns.CategorySpamKeyword))
	score := 0.18 * float64(hits)
	if score > 0.95 {
		return 0.95
	}
	return score
}

// isSpamLabel maps model label conventions onto the positive class.
func isSpamLabel(label string) bool {
	switch strings.ToUpper(label) {
	case "SPAM", "LABEL_1":
		return true
	}
	return false
}

// PredictEmail scores an email from its subject and body. Falls back to the
// keyword heuristic when the model is unavailable or inference fails; the
// details "source" field records which path produced the score.
func (s *ModelService) PredictEmail(subject, message string) (Verdict, error) {
	text := strings.TrimSpace(subject + "\n" + message)
	if text == "" {
		return Verdict{}, fmt.Errorf("%w: email scan requires at least subject or message text", ErrInvalidInput)
	}
	text = norm.NFKC.String(text)

	var spamProb float64
	var source string

	pipeline, err := s.artifacts.Email()
	if err != nil {
		spamProb = heuristicEmailScore(text)
		source = "heuristic"
	} else {
		result, err := pipeline.Classify(text)
		if err != nil {
			log.Printf("[ML] Email inference fallback to heuristic: %v", err)
			spamProb = heuristicEmailScore(text)
			source = "heuristic_fallback"
		} else {
			spamProb = result.Score
			if !isSpamLabel(result.Label) {
				spamProb = 1.0 - result.Score
			}
			source = "distilbert"
		}
	}

	return newBinaryVerdict(spamProb, "SPAM", "HAM", map[string]any{
		"spam_probability": round6(spamProb),
		"source":           source,
	}), nil
}

// PredictMessage scores a short message (SMS) through the TF-IDF vectorizer
// and tree classifier. No fallback exists for this modality.
func (s *ModelService) PredictMessage(text string) (Verdict, error) {
	if strings.TrimSpace(text) == "" {
		return Verdict{}, fmt.Errorf("%w: message scan requires non-empty text", ErrInvalidInput)
	}

	bundle, err := s.artifacts.Message()
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}

	row := bundle.Vectorizer.Vectorize(text)
	probs, err := bundle.Model.RunProbabilities(row)
	if err != nil {
		return Verdict{}, fmt.Errorf("message inference: %w", err)
	}

	hamProb := 0.0
	if len(probs) > 0 {
		hamProb = float64(probs[0])
	}
	scamProb := positiveProb(probs)

	verdict := "SAFE"
	confidence := 1.0 - scamProb
	if argmax(probs) == 1 {
		verdict = "SCAM"
		confidence = scamProb
	}

	return Verdict{
		Verdict:    verdict,
		Confidence: round4(confidence),
		RiskScore:  round2(scamProb * 100.0),
		Details: map[string]any{
			"scam_probability": round6(scamProb),
			"class_probabilities": map[string]any{
				"ham":  round6(hamProb),
				"spam": round6(scamProb),
			},
			"model": "sms_rf_tfidf_model",
		},
	}, nil
}

// PredictURL scores a URL through the multi-class classifier. The verdict is
// SAFE only for the benign class; the risk score is the total probability
// mass on the malicious classes.
func (s *ModelService) PredictURL(url string) (Verdict, error) {
	if strings.TrimSpace(url) == "" {
		return Verdict{}, fmt.Errorf("%w: url scan requires a URL string", ErrInvalidInput)
	}

	bundle, err := s.artifacts.URL()
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}

	featureMap := features.URLFeatures(url)
	row := features.Reindex(featureMap, bundle.Model.Manifest.Columns)
	probs, err := bundle.Model.RunProbabilities(row)
	if err != nil {
		return Verdict{}, fmt.Errorf("url inference: %w", err)
	}
	if len(probs) == 0 {
		return Verdict{}, fmt.Errorf("url model produced no probabilities")
	}

	labels := bundle.Model.Manifest.Labels
	if len(labels) == 0 {
		if len(probs) == len(defaultURLLabels) {
			labels = defaultURLLabels
		} else {
			labels = make([]string, len(probs))
			for i := range labels {
				labels[i] = fmt.Sprintf("class_%d", i)
			}
		}
	}

	classProbs := make(map[string]any, len(probs))
	benignProb := -1.0
	maxProb := 0.0
	for i, p := range probs {
		if i >= len(labels) {
			break
		}
		classProbs[labels[i]] = round6(float64(p))
		if labels[i] == "benign" {
			benignProb = float64(p)
		}
		if float64(p) > maxProb {
			maxProb = float64(p)
		}
	}

	maliciousProb := maxProb
	if benignProb >= 0 {
		maliciousProb = 1.0 - benignProb
	}

	predictedIdx := argmax(probs)
	predictedLabel := fmt.Sprintf("%d", predictedIdx)
	if predictedIdx < len(labels) {
		predictedLabel = labels[predictedIdx]
	}

	verdict := "MALICIOUS"
	if predictedLabel == "benign" {
		verdict = "SAFE"
	}

	return Verdict{
		Verdict:    verdict,
		Confidence: round4(float64(probs[predictedIdx])),
		RiskScore:  round2(maliciousProb * 100.0),
		Details: map[string]any{
			"predicted_category":  predictedLabel,
			"class_probabilities": classProbs,
			"model":               bundle.ModelName,
		},
	}, nil
}

// PredictFile scores an executable through the XGBoost and random forest
// malware classifiers, averaging their probabilities. Feature extraction
// runs before any artifact load, so a non-PE upload short-circuits to a
// NOT_PE_OR_INVALID verdict without touching the classifiers.
func (s *ModelService) PredictFile(fileBytes []byte, filename string) (Verdict, error) {
	if len(fileBytes) == 0 {
		return Verdict{}, fmt.Errorf("%w: file scan requires non-empty binary content", ErrInvalidInput)
	}

	featureMap := features.PEFeatures(fileBytes)
	if featureMap == nil {
		return Verdict{
			Verdict:    "NOT_PE_OR_INVALID",
			Confidence: 1.0,
			RiskScore:  10.0,
			Details: map[string]any{
				"reason":   "The uploaded file is not a valid PE executable or could not be parsed.",
				"filename": filename,
			},
		}, nil
	}

	bundle, err := s.artifacts.File()
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}

	row := features.Reindex(featureMap, bundle.XGBoost.Manifest.Columns)
	xgbProbs, err := bundle.XGBoost.RunProbabilities(row)
	if err != nil {
		return Verdict{}, fmt.Errorf("file xgboost inference: %w", err)
	}
	rfProbs, err := bundle.RandomForest.RunProbabilities(row)
	if err != nil {
		return Verdict{}, fmt.Errorf("file random forest inference: %w", err)
	}

	xgbProb := positiveProb(xgbProbs)
	rfProb := positiveProb(rfProbs)
	ensembleProb := (xgbProb + rfProb) / 2.0

	v := newBinaryVerdict(ensembleProb, "MALWARE", "GOODWARE", map[string]any{
		"xgboost_probability":       round6(xgbProb),
		"random_forest_probability": round6(rfProb),
		"filename":                  filename,
	})
	return v, nil
}

// PredictFraud scores a financial transaction. The isolation forest anomaly
// score is computed first and appended to the feature map as
// "iso_anomaly_score" before the supervised classifier runs.
func (s *ModelService) PredictFraud(tx features.Transaction) (Verdict, error) {
	bundle, err := s.artifacts.Fraud()
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}

	featureMap := features.FraudFeatures(tx, bundle.Encoder, bundle.Scaler)

	isoRow := features.Reindex(featureMap, bundle.IsoForest.Manifest.Columns)
	isoOut, err := bundle.IsoForest.RunProbabilities(isoRow)
	if err != nil {
		return Verdict{}, fmt.Errorf("fraud anomaly scoring: %w", err)
	}
	isoScore := 0.0
	if len(isoOut) > 0 {
		isoScore = float64(isoOut[0])
	}
	featureMap["iso_anomaly_score"] = isoScore

	row := features.Reindex(featureMap, bundle.Classifier.Manifest.Columns)
	probs, err := bundle.Classifier.RunProbabilities(row)
	if err != nil {
		return Verdict{}, fmt.Errorf("fraud inference: %w", err)
	}
	fraudProb := positiveProb(probs)

	return newBinaryVerdict(fraudProb, "FRAUD", "LEGIT", map[string]any{
		"fraud_probability": round6(fraudProb),
		"iso_anomaly_score": round6(isoScore),
		"model":             "fraud_xgboost + isolation_forest",
	}), nil
}

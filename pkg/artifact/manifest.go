// Package artifact loads trained model artifacts from the model directory
// and owns their lifecycle. Artifacts are produced by an external training
// pipeline and consumed read-only: ONNX graphs with JSON sidecar manifests,
// plus JSON-serialized preprocessing state (TF-IDF vocabulary, one-hot
// categories, scaler statistics).
//
// Loading is lazy and per-modality. A bundle that fails to load stays
// failed; callers decide whether a fallback exists.
package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
)

// Manifest is the JSON sidecar next to every ONNX graph. It declares the
// tensor names and the trained feature schema; inference is impossible
// without it since ONNX carries no column-order metadata.
type Manifest struct {
	InputName   string   `json:"input_name"`
	OutputNames []string `json:"output_names"`
	Columns     []string `json:"columns,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// Vectorizer is a fitted TF-IDF vectorizer: vocabulary term -> column index
// plus per-column inverse document frequencies.
type Vectorizer struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// tokenPattern matches the trained vectorizer's tokenization: word
// characters, two or more.
var tokenPattern = regexp.MustCompile(`\b\w\w+\b`)

// Vectorize maps text onto the trained TF-IDF space: term counts weighted
// by IDF, L2-normalized. The output length always equals the vocabulary
// size, with out-of-vocabulary terms ignored.
func (v *Vectorizer) Vectorize(text string) []float32 {
	row := make([]float64, len(v.IDF))

	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if idx, ok := v.Vocabulary[token]; ok && idx < len(row) {
			row[idx] += v.IDF[idx]
		}
	}

	norm := 0.0
	for _, val := range row {
		norm += val * val
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(row))
	if norm > 0 {
		for i, val := range row {
			out[i] = float32(val / norm)
		}
	}
	return out
}

// Validate checks the vectorizer is internally consistent.
func (v *Vectorizer) Validate() error {
	for term, idx := range v.Vocabulary {
		if idx < 0 || idx >= len(v.IDF) {
			return fmt.Errorf("vectorizer term %q maps to index %d outside idf length %d", term, idx, len(v.IDF))
		}
	}
	return nil
}

// readJSON decodes a JSON artifact file into out.
func readJSON(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse artifact %s: %w", path, err)
	}
	return nil
}

// readManifest loads and sanity-checks an ONNX sidecar manifest.
func readManifest(path string) (*Manifest, error) {
	m := &Manifest{}
	if err := readJSON(path, m); err != nil {
		return nil, err
	}
	if m.InputName == "" || len(m.OutputNames) == 0 {
		return nil, fmt.Errorf("manifest %s missing tensor names", path)
	}
	return m, nil
}

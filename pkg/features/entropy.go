// Package features turns raw, untrusted input into fixed-schema numeric
// feature maps for the modality classifiers. Every extractor is a pure, total
// function: malformed input produces a neutral feature vector, never an error.
package features

import "math"

// ShannonEntropy returns the Shannon entropy of the text in bits per
// character. Randomized or obfuscated domains score high; natural-language
// text sits around 3-4 bits.
func ShannonEntropy(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	counts := make(map[rune]float64)
	total := 0.0
	for _, r := range text {
		counts[r]++
		total++
	}

	entropy := 0.0
	for _, count := range counts {
		p := count / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// byteEntropy is ShannonEntropy over raw bytes (0-8 bits per byte).
// Used for PE section entropy, where packed or encrypted sections
// approach 8.0.
func byteEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]float64
	for _, b := range data {
		counts[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := count / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Reindex projects a feature map onto a trained schema: the result follows
// the schema's column order exactly, missing columns are zero-filled and
// unknown columns are dropped. This is the single reindexing step applied
// before any model inference; column-order mismatches silently corrupt tree
// model predictions, so every classifier input goes through here.
func Reindex(featureMap map[string]float64, columns []string) []float32 {
	row := make([]float32, len(columns))
	for i, column := range columns {
		row[i] = float32(featureMap[column])
	}
	return row
}

package features

import (
	"math"
	"strings"
)

// Transaction is a single financial transaction submitted for fraud scoring.
// The optional velocity fields come from an upstream aggregation job; when
// absent, neutral single-transaction defaults are substituted.
type Transaction struct {
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Step     int     `json:"step"`
	NameOrig string  `json:"nameOrig"`
	NameDest string  `json:"nameDest"`

	OrigTxCountLast24h   *float64 `json:"orig_tx_count_last_24h,omitempty"`
	OrigAmountSumLast24h *float64 `json:"orig_amount_sum_last_24h,omitempty"`
	OrigVelocityLast24h  *float64 `json:"orig_velocity_last_24h,omitempty"`
	OrigOutDegree        *float64 `json:"orig_out_degree,omitempty"`
	DestInDegree         *float64 `json:"dest_in_degree,omitempty"`
}

// OneHotEncoder expands a categorical value into indicator features named
// "<prefix>_<category>". Unknown categories yield all zeros, matching
// ignore-unknown encoding at training time.
type OneHotEncoder struct {
	Prefix     string   `json:"prefix"`
	Categories []string `json:"categories"`
}

// Encode writes the indicator columns for value into the feature map.
func (e *OneHotEncoder) Encode(value string, features map[string]float64) {
	for _, category := range e.Categories {
		features[e.Prefix+"_"+category] = boolFeature(value == category)
	}
}

// Scaler standardizes the columns it was fitted on: (v - mean) / scale.
// Columns outside its fitted set pass through untouched.
type Scaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// Apply standardizes the scaler's fitted columns in place. Missing columns
// are treated as zero before scaling, mirroring the zero-fill reindex.
func (s *Scaler) Apply(features map[string]float64) {
	for i, column := range s.Columns {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		features[column] = (features[column] - s.Mean[i]) / scale
	}
}

// FraudFeatures builds the engineered feature map for the fraud classifier.
// encoder and scaler are fitted artifacts; either may be nil, in which case
// the corresponding transformation is skipped.
func FraudFeatures(tx Transaction, encoder *OneHotEncoder, scaler *Scaler) map[string]float64 {
	amount := math.Max(tx.Amount, 0)

	step := tx.Step
	if step < 1 {
		step = 1
	}
	hour := float64((step - 1) % 24)

	txCount := 1.0
	if tx.OrigTxCountLast24h != nil {
		txCount = *tx.OrigTxCountLast24h
	}
	amountSum := amount
	if tx.OrigAmountSumLast24h != nil {
		amountSum = *tx.OrigAmountSumLast24h
	}
	// Velocity defaults to the supplied 24h sum before falling back to the
	// single-transaction amount.
	velocity := amountSum
	if tx.OrigVelocityLast24h != nil {
		velocity = *tx.OrigVelocityLast24h
	}
	outDegree := 1.0
	if tx.OrigOutDegree != nil {
		outDegree = *tx.OrigOutDegree
	}
	inDegree := 1.0
	if tx.DestInDegree != nil {
		inDegree = *tx.DestInDegree
	}

	features := map[string]float64{
		"amount":     amount,
		"step":       float64(step),
		"hour":       hour,
		"is_night":   boolFeature(hour >= 22 || hour <= 4),
		"log_amount": math.Log1p(amount),

		"is_high_amount": boolFeature(amount > 200000),
		"is_merchant":    boolFeature(strings.HasPrefix(tx.NameDest, "M")),

		"orig_tx_count_last_24h":   txCount,
		"orig_amount_sum_last_24h": amountSum,
		"orig_velocity_last_24h":   velocity,
		"orig_out_degree":          outDegree,
		"dest_in_degree":           inDegree,
	}

	if encoder != nil {
		encoder.Encode(strings.ToUpper(strings.TrimSpace(tx.Type)), features)
	}
	if scaler != nil {
		scaler.Apply(features)
	}
	return features
}

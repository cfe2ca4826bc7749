package ml

import "errors"

// Sentinel errors returned by the model service. Callers match these with
// errors.Is; the HTTP boundary maps ErrInvalidInput to 400 and
// ErrArtifactUnavailable to 503.
var (
	// ErrInvalidInput marks a scan request whose payload cannot be scored
	// (empty text, empty file bytes).
	ErrInvalidInput = errors.New("invalid scan input")

	// ErrArtifactUnavailable marks a modality whose trained artifacts are
	// missing or failed to load, and for which no fallback exists.
	ErrArtifactUnavailable = errors.New("model artifacts unavailable")
)

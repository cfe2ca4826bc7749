package artifact

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// EmailPipeline wraps a hugot text-classification pipeline over the
// fine-tuned spam model directory (HuggingFace ONNX export).
type EmailPipeline struct {
	mu       sync.RWMutex
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
}

// openEmailPipeline loads the email spam classifier. The ONNX Runtime
// backend is preferred; when the shared library is unavailable the pure Go
// backend is used instead (slower, same results).
func openEmailPipeline(modelPath, onnxLibraryPath string) (*EmailPipeline, error) {
	if _, err := os.Stat(filepath.Join(modelPath, "model.onnx")); err != nil {
		return nil, fmt.Errorf("email model %s: %w", modelPath, err)
	}

	session, err := newHugotSession(onnxLibraryPath)
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}

	config := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "email-spam-classifier",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("create email pipeline: %w", err)
	}

	return &EmailPipeline{session: session, pipeline: pipeline}, nil
}

func newHugotSession(onnxLibraryPath string) (*hugot.Session, error) {
	if onnxLibraryPath != "" {
		session, err := hugot.NewORTSession(options.WithOnnxLibraryPath(onnxLibraryPath))
		if err == nil {
			log.Printf("[ARTIFACT] Hugot using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("[ARTIFACT] ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}
	return hugot.NewGoSession()
}

// EmailClassification is a single label/score pair from the email model.
type EmailClassification struct {
	Label string
	Score float64
}

// Classify runs the spam model over text and returns the top label with its
// score.
func (p *EmailPipeline) Classify(text string) (EmailClassification, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pipeline == nil {
		return EmailClassification{}, fmt.Errorf("email pipeline closed")
	}

	result, err := p.pipeline.RunPipeline([]string{text})
	if err != nil {
		return EmailClassification{}, fmt.Errorf("email classification: %w", err)
	}
	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return EmailClassification{}, fmt.Errorf("email model returned no output")
	}

	top := result.ClassificationOutputs[0][0]
	return EmailClassification{Label: top.Label, Score: float64(top.Score)}, nil
}

// Close destroys the underlying hugot session.
func (p *EmailPipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		_ = p.session.Destroy()
		p.session = nil
		p.pipeline = nil
	}
}

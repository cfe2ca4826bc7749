package artifact

import (
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortInitOnce guards ONNX Runtime environment initialization; the shared
// library is loaded exactly once per process.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
		if ortInitErr == nil {
			log.Printf("[ARTIFACT] ONNX Runtime environment initialized")
		}
	})
	return ortInitErr
}

// Session wraps a loaded ONNX graph together with its manifest. Run calls
// are serialized through a mutex; ONNX Runtime sessions do not tolerate
// concurrent Run on the same session.
type Session struct {
	Name     string
	Manifest *Manifest

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// OpenSession loads an ONNX graph and its sidecar manifest from modelPath
// and modelPath with the extension swapped for ".json".
func OpenSession(modelPath, manifestPath, libraryPath string) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}

	manifest, err := readManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	if err := initRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{manifest.InputName},
		manifest.OutputNames,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("open onnx session %s: %w", modelPath, err)
	}

	return &Session{
		Name:     modelPath,
		Manifest: manifest,
		session:  session,
	}, nil
}

// Run feeds a single feature row through the graph and returns one float32
// slice per declared output tensor. Output tensors are copied out before
// destruction, so the returned slices are safe to retain.
func (s *Session) Run(row []float32) ([][]float32, error) {
	shape := ort.NewShape(1, int64(len(row)))
	input, err := ort.NewTensor(shape, row)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, len(s.Manifest.OutputNames))

	s.mu.Lock()
	err = s.session.Run([]ort.Value{input}, outputs)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", s.Name, err)
	}

	results := make([][]float32, len(outputs))
	for i, out := range outputs {
		if out == nil {
			continue
		}
		if tensor, ok := out.(*ort.Tensor[float32]); ok {
			data := tensor.GetData()
			results[i] = make([]float32, len(data))
			copy(results[i], data)
		}
		out.Destroy()
	}
	return results, nil
}

// RunProbabilities runs the graph and returns the first non-empty output,
// which for the exported classifiers is the class probability tensor.
func (s *Session) RunProbabilities(row []float32) ([]float32, error) {
	outputs, err := s.Run(row)
	if err != nil {
		return nil, err
	}
	for _, out := range outputs {
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("model %s produced no float32 output", s.Name)
}

// Close releases the underlying ONNX session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

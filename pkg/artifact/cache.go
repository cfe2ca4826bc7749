package artifact

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/features"
)

// Artifact file names expected under the model directory. Any modality may
// be absent; the engine degrades per-modality instead of failing startup.
const (
	emailModelDir = "email_spam_distilbert_onnx"

	messageModelFile      = "sms_rf_tfidf_model.onnx"
	messageManifestFile   = "sms_rf_tfidf_model.json"
	messageVectorizerFile = "sms_tfidf_vectorizer.json"

	urlModelFile    = "url_xgboost_malicious_detector.onnx"
	urlManifestFile = "url_xgboost_malicious_detector.json"

	fileXGBModelFile    = "file_malware_xgboost.onnx"
	fileXGBManifestFile = "file_malware_xgboost.json"
	fileRFModelFile     = "file_malware_rf.onnx"
	fileRFManifestFile  = "file_malware_rf.json"

	fraudModelFile      = "fraud_xgboost.onnx"
	fraudManifestFile   = "fraud_xgboost.json"
	fraudIsoModelFile   = "fraud_iso_forest.onnx"
	fraudIsoManifest    = "fraud_iso_forest.json"
	fraudEncoderFile    = "fraud_ohe.json"
	fraudScalerFile     = "fraud_scaler.json"
)

// cellState tracks a bundle's load lifecycle.
type cellState int

const (
	cellUnloaded cellState = iota
	cellReady
	cellUnavailable
)

// loadCell serializes the first load of a bundle. The mutex is held for the
// whole load, so concurrent first callers block and then observe the settled
// state. A failed load is permanent for the process lifetime.
type loadCell struct {
	mu    sync.Mutex
	state cellState
	err   error
}

// ensure runs load exactly once. Subsequent calls return the settled error
// without re-running load.
func (c *loadCell) ensure(load func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case cellReady:
		return nil
	case cellUnavailable:
		return c.err
	}

	if err := load(); err != nil {
		c.state = cellUnavailable
		c.err = err
		return err
	}
	c.state = cellReady
	return nil
}

// MessageBundle holds the message (SMS) classifier artifacts.
type MessageBundle struct {
	Vectorizer *Vectorizer
	Model      *Session
}

// URLBundle holds the URL classifier artifacts.
type URLBundle struct {
	Model     *Session
	ModelName string
}

// FileBundle holds the two file-malware classifiers used as an ensemble.
type FileBundle struct {
	XGBoost      *Session
	RandomForest *Session
}

// FraudBundle holds the fraud classifier plus the isolation forest anomaly
// detector and the fitted preprocessing state.
type FraudBundle struct {
	Classifier *Session
	IsoForest  *Session
	Encoder    *features.OneHotEncoder
	Scaler     *features.Scaler
}

// Cache lazily loads per-modality artifact bundles from a model directory.
// Safe for concurrent use.
type Cache struct {
	modelDir    string
	libraryPath string

	emailCell   loadCell
	messageCell loadCell
	urlCell     loadCell
	fileCell    loadCell
	fraudCell   loadCell

	email   *EmailPipeline
	message *MessageBundle
	url     *URLBundle
	file    *FileBundle
	fraud   *FraudBundle
}

// NewCache creates an artifact cache rooted at modelDir. Nothing is loaded
// until a bundle is first requested.
func NewCache(modelDir, onnxLibraryPath string) *Cache {
	return &Cache{modelDir: modelDir, libraryPath: onnxLibraryPath}
}

// ModelDir returns the resolved artifact directory.
func (c *Cache) ModelDir() string {
	return c.modelDir
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.modelDir, name)
}

// Email returns the email classification pipeline, loading it on first use.
func (c *Cache) Email() (*EmailPipeline, error) {
	err := c.emailCell.ensure(func() error {
		pipeline, err := openEmailPipeline(c.path(emailModelDir), c.libraryPath)
		if err != nil {
			return err
		}
		c.email = pipeline
		log.Printf("[ARTIFACT] Email pipeline loaded from %s", emailModelDir)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.email, nil
}

// Message returns the message classifier bundle, loading it on first use.
func (c *Cache) Message() (*MessageBundle, error) {
	err := c.messageCell.ensure(func() error {
		vectorizer := &Vectorizer{}
		if err := readJSON(c.path(messageVectorizerFile), vectorizer); err != nil {
			return err
		}
		if err := vectorizer.Validate(); err != nil {
			return err
		}

		model, err := OpenSession(c.path(messageModelFile), c.path(messageManifestFile), c.libraryPath)
		if err != nil {
			return err
		}

		c.message = &MessageBundle{Vectorizer: vectorizer, Model: model}
		log.Printf("[ARTIFACT] Message bundle loaded (%d vocabulary terms)", len(vectorizer.Vocabulary))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.message, nil
}

// URL returns the URL classifier bundle, loading it on first use.
func (c *Cache) URL() (*URLBundle, error) {
	err := c.urlCell.ensure(func() error {
		model, err := OpenSession(c.path(urlModelFile), c.path(urlManifestFile), c.libraryPath)
		if err != nil {
			return err
		}
		if len(model.Manifest.Columns) == 0 {
			model.Close()
			return fmt.Errorf("url model manifest declares no feature columns")
		}

		c.url = &URLBundle{Model: model, ModelName: urlModelFile}
		log.Printf("[ARTIFACT] URL bundle loaded (%d features)", len(model.Manifest.Columns))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.url, nil
}

// File returns the file-malware ensemble bundle, loading it on first use.
func (c *Cache) File() (*FileBundle, error) {
	err := c.fileCell.ensure(func() error {
		xgb, err := OpenSession(c.path(fileXGBModelFile), c.path(fileXGBManifestFile), c.libraryPath)
		if err != nil {
			return err
		}
		rf, err := OpenSession(c.path(fileRFModelFile), c.path(fileRFManifestFile), c.libraryPath)
		if err != nil {
			xgb.Close()
			return err
		}
		if len(xgb.Manifest.Columns) == 0 {
			xgb.Close()
			rf.Close()
			return fmt.Errorf("file model manifest declares no feature columns")
		}

		c.file = &FileBundle{XGBoost: xgb, RandomForest: rf}
		log.Printf("[ARTIFACT] File bundle loaded (%d features)", len(xgb.Manifest.Columns))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.file, nil
}

// Fraud returns the fraud detection bundle, loading it on first use.
func (c *Cache) Fraud() (*FraudBundle, error) {
	err := c.fraudCell.ensure(func() error {
		classifier, err := OpenSession(c.path(fraudModelFile), c.path(fraudManifestFile), c.libraryPath)
		if err != nil {
			return err
		}
		iso, err := OpenSession(c.path(fraudIsoModelFile), c.path(fraudIsoManifest), c.libraryPath)
		if err != nil {
			classifier.Close()
			return err
		}

		encoder := &features.OneHotEncoder{}
		if err := readJSON(c.path(fraudEncoderFile), encoder); err != nil {
			classifier.Close()
			iso.Close()
			return err
		}
		scaler := &features.Scaler{}
		if err := readJSON(c.path(fraudScalerFile), scaler); err != nil {
			classifier.Close()
			iso.Close()
			return err
		}

		c.fraud = &FraudBundle{Classifier: classifier, IsoForest: iso, Encoder: encoder, Scaler: scaler}
		log.Printf("[ARTIFACT] Fraud bundle loaded")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.fraud, nil
}

// Status reports per-modality artifact availability by file existence, plus
// the resolved model directory under "model_dir".
func (c *Cache) Status() map[string]any {
	expected := map[string][]string{
		"email":   {emailModelDir},
		"message": {messageModelFile, messageVectorizerFile},
		"url":     {urlModelFile},
		"file":    {fileXGBModelFile, fileRFModelFile},
		"fraud":   {fraudModelFile, fraudIsoModelFile, fraudScalerFile, fraudEncoderFile},
	}

	status := make(map[string]any, len(expected)+1)
	for key, names := range expected {
		present := false
		for _, name := range names {
			if _, err := os.Stat(c.path(name)); err == nil {
				present = true
				break
			}
		}
		status[key] = present
	}
	status["model_dir"] = c.modelDir
	return status
}

// Close releases every loaded session. Call on shutdown.
func (c *Cache) Close() {
	if c.email != nil {
		c.email.Close()
	}
	if c.message != nil {
		c.message.Model.Close()
	}
	if c.url != nil {
		c.url.Model.Close()
	}
	if c.file != nil {
		c.file.XGBoost.Close()
		c.file.RandomForest.Close()
	}
	if c.fraud != nil {
		c.fraud.Classifier.Close()
		c.fraud.IsoForest.Close()
	}
}

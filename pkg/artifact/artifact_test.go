package artifact

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLoadCellRunsOnce(t *testing.T) {
	cell := &loadCell{}
	calls := 0

	for i := 0; i < 3; i++ {
		err := cell.ensure(func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("ensure returned error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

func TestLoadCellFailureIsPermanent(t *testing.T) {
	cell := &loadCell{}
	boom := errors.New("artifact missing")
	calls := 0

	for i := 0; i < 3; i++ {
		err := cell.ensure(func() error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("ensure error = %v, want %v", err, boom)
		}
	}
	if calls != 1 {
		t.Errorf("failed loader retried %d times, want 1 attempt", calls)
	}
}

func TestLoadCellConcurrentFirstLoad(t *testing.T) {
	cell := &loadCell{}
	calls := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cell.ensure(func() error {
				calls++
				return nil
			})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("concurrent first loads ran loader %d times, want 1", calls)
	}
}

func TestVectorizer(t *testing.T) {
	v := &Vectorizer{
		Vocabulary: map[string]int{"free": 0, "money": 1, "meeting": 2},
		IDF:        []float64{2.0, 3.0, 1.0},
	}
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	t.Run("l2 normalized", func(t *testing.T) {
		row := v.Vectorize("FREE money free")
		// free appears twice: 2*2.0 = 4; money once: 3.0; norm = 5.
		if math.Abs(float64(row[0])-0.8) > 1e-6 {
			t.Errorf("row[0] = %v, want 0.8", row[0])
		}
		if math.Abs(float64(row[1])-0.6) > 1e-6 {
			t.Errorf("row[1] = %v, want 0.6", row[1])
		}
		if row[2] != 0 {
			t.Errorf("row[2] = %v, want 0", row[2])
		}
	})

	t.Run("out of vocabulary ignored", func(t *testing.T) {
		row := v.Vectorize("unknown words only here")
		for i, val := range row {
			if val != 0 {
				t.Errorf("row[%d] = %v, want 0 for OOV text", i, val)
			}
		}
	})

	t.Run("single char tokens dropped", func(t *testing.T) {
		row := v.Vectorize("a b c free")
		if row[0] == 0 {
			t.Error("two-plus character token should match")
		}
	})

	t.Run("output length equals vocabulary", func(t *testing.T) {
		if got := len(v.Vectorize("")); got != 3 {
			t.Errorf("len = %d, want 3", got)
		}
	})
}

func TestVectorizerValidate(t *testing.T) {
	bad := &Vectorizer{Vocabulary: map[string]int{"x": 5}, IDF: []float64{1.0}}
	if err := bad.Validate(); err == nil {
		t.Error("expected validation error for out-of-range index")
	}
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "model.json")
		content := `{"input_name":"float_input","output_names":["label","probabilities"],"columns":["a","b"],"labels":["ham","spam"]}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		m, err := readManifest(path)
		if err != nil {
			t.Fatalf("readManifest: %v", err)
		}
		if m.InputName != "float_input" || len(m.OutputNames) != 2 || len(m.Columns) != 2 {
			t.Errorf("manifest fields wrong: %+v", m)
		}
	})

	t.Run("missing tensor names", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte(`{"columns":["a"]}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := readManifest(path); err == nil {
			t.Error("expected error for manifest without tensor names")
		}
	})

	t.Run("absent file", func(t *testing.T) {
		if _, err := readManifest(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("expected error for missing manifest")
		}
	})
}

func TestCacheStatus(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, "")

	status := cache.Status()
	for _, key := range []string{"email", "message", "url", "file", "fraud"} {
		if status[key] != false {
			t.Errorf("empty dir: status[%s] = %v, want false", key, status[key])
		}
	}
	if status["model_dir"] != dir {
		t.Errorf("model_dir = %v, want %v", status["model_dir"], dir)
	}

	// Drop in one modality's artifact and re-check.
	if err := os.WriteFile(filepath.Join(dir, urlModelFile), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, emailModelDir), 0o755); err != nil {
		t.Fatal(err)
	}

	status = cache.Status()
	if status["url"] != true {
		t.Error("url artifact present but reported missing")
	}
	if status["email"] != true {
		t.Error("email model dir present but reported missing")
	}
	if status["fraud"] != false {
		t.Error("fraud reported present in dir without fraud artifacts")
	}
}

func TestCacheMissingArtifactsFailPermanently(t *testing.T) {
	cache := NewCache(t.TempDir(), "")

	if _, err := cache.Message(); err == nil {
		t.Fatal("expected load failure for empty model dir")
	}
	// Second call must observe the settled failure, not retry IO.
	if _, err := cache.Message(); err == nil {
		t.Fatal("expected permanent failure on second call")
	}
}

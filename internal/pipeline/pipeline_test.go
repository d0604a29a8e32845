package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/asl-classifier/internal/config"
	"github.com/ironsheep/asl-classifier/internal/imaging"
	"github.com/ironsheep/asl-classifier/internal/model"
)

// writeGesture writes a noisy 40x40 PNG whose left half is bright when
// brightLeft is set and whose right half is bright otherwise.
func writeGesture(t *testing.T, path string, brightLeft bool, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(rng.Intn(40))
			if (x < 20) == brightLeft {
				v += 200
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// testConfig lays out a two-class training tree and a flat test directory
// under a temp dir.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.TrainDir = filepath.Join(root, "train")
	cfg.TestDir = filepath.Join(root, "test")
	cfg.ModelDir = filepath.Join(root, "model")
	cfg.ImageSize = 29
	cfg.BatchSize = 4
	cfg.Epochs = 2
	cfg.ValidationSplit = 0.25
	cfg.Workers = 2
	cfg.Progress = false

	for i := 0; i < 4; i++ {
		writeGesture(t, filepath.Join(cfg.TrainDir, "A", "a"+string(rune('0'+i))+".png"), true, int64(i))
		writeGesture(t, filepath.Join(cfg.TrainDir, "B", "b"+string(rune('0'+i))+".png"), false, int64(10+i))
	}
	// unreadable file is skipped
	if err := os.WriteFile(filepath.Join(cfg.TrainDir, "B", "broken.png"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	writeGesture(t, filepath.Join(cfg.TestDir, "A_test.png"), true, 100)
	writeGesture(t, filepath.Join(cfg.TestDir, "B_test.png"), false, 101)
	writeGesture(t, filepath.Join(cfg.TestDir, "Z_test.png"), true, 102)

	cfg.Images = []string{
		filepath.Join(cfg.TestDir, "B_test.png"),
		filepath.Join(root, "missing.png"),
		filepath.Join(cfg.TestDir, "A_test.png"),
	}
	return cfg
}

func TestLoadModelNotFound(t *testing.T) {
	cfg := config.Default()
	cfg.ModelDir = t.TempDir()
	if _, err := LoadModel(cfg); !errors.Is(err, model.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestLoadSplitIsDeterministic(t *testing.T) {
	cfg := testConfig(t)
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	if got := strings.Join(enc.Classes(), ","); got != "A,B" {
		t.Fatalf("classes = %s", got)
	}

	_, val1, err := LoadSplit(context.Background(), cfg, enc)
	if err != nil {
		t.Fatalf("LoadSplit failed: %v", err)
	}
	train2, val2, err := LoadSplit(context.Background(), cfg, enc)
	if err != nil {
		t.Fatalf("LoadSplit failed: %v", err)
	}
	if val1.Len() != 2 || train2.Len() != 6 {
		t.Fatalf("split sizes train=%d val=%d, want 6 and 2", train2.Len(), val1.Len())
	}
	for i := range val1.Paths {
		if val1.Paths[i] != val2.Paths[i] {
			t.Errorf("validation sample %d differs: %s vs %s", i, val1.Paths[i], val2.Paths[i])
		}
	}
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	text := out.String()

	for _, want := range []string{
		"Test accuracy:",
		"Validation accuracy:",
		"weighted avg",
		"B_test.png --> ",
		"missing.png --> error",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	// predictions keep the order of cfg.Images
	if strings.Index(text, "B_test.png -->") > strings.Index(text, "A_test.png -->") {
		t.Errorf("predictions out of order:\n%s", text)
	}

	for _, path := range []string{
		cfg.ModelPath(),
		cfg.WeightsPath(),
		cfg.CheckpointPath(),
		cfg.ConfusionPath("test"),
		cfg.ConfusionPath("validation"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s: %v", path, err)
		}
	}
	logs, err := filepath.Glob(filepath.Join(cfg.ModelDir, "logs", "fit", "*", "history.csv"))
	if err != nil || len(logs) != 1 {
		t.Errorf("expected one history.csv, got %v (%v)", logs, err)
	}

	// a second run reuses the existing model directory
	cfg.Epochs = 1
	if _, err := Train(context.Background(), cfg); err != nil {
		t.Fatalf("second Train failed: %v", err)
	}
}

func TestReloadAndPredict(t *testing.T) {
	cfg := testConfig(t)
	cfg.Epochs = 1

	res, err := Train(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if len(res.History.Epochs) != 1 {
		t.Errorf("history has %d epochs, want 1", len(res.History.Epochs))
	}

	net, err := LoadModel(cfg)
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}

	cache := imaging.NewImageCache()
	want, err := PredictFiles(context.Background(), res.Network, cfg, cache, cfg.Images)
	if err != nil {
		t.Fatalf("PredictFiles failed: %v", err)
	}
	got, err := PredictFiles(context.Background(), net, cfg, cache, cfg.Images)
	if err != nil {
		t.Fatalf("PredictFiles on reloaded model failed: %v", err)
	}

	if len(got) != len(cfg.Images) {
		t.Fatalf("got %d predictions, want %d", len(got), len(cfg.Images))
	}
	for i, p := range got {
		if p.Path != cfg.Images[i] {
			t.Errorf("prediction %d is for %s, want %s", i, p.Path, cfg.Images[i])
		}
		if p.Label != want[i].Label || p.Confidence != want[i].Confidence {
			t.Errorf("prediction %d: reloaded %s/%f, trained %s/%f", i, p.Label, p.Confidence, want[i].Label, want[i].Confidence)
		}
	}
	if got[1].Err == nil || got[1].Index != -1 {
		t.Errorf("missing file should fail alone, got %+v", got[1])
	}
	if got[0].Err != nil || got[2].Err != nil {
		t.Errorf("readable files failed: %v, %v", got[0].Err, got[2].Err)
	}

	sheet := filepath.Join(cfg.ModelDir, "sheet.png")
	if err := WriteContactSheet(got, cache, sheet); err != nil {
		t.Fatalf("WriteContactSheet failed: %v", err)
	}
	if _, err := os.Stat(sheet); err != nil {
		t.Errorf("contact sheet not written: %v", err)
	}

	cfg.NormalizeConfusion = true
	var out bytes.Buffer
	if err := EvaluateAll(context.Background(), cfg, net, res.Encoder, res.Validation, &out); err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	if !strings.Contains(out.String(), "Test accuracy:") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	if _, err := os.Stat(cfg.ConfusionPath("test")); err != nil {
		t.Errorf("normalized confusion matrix not written: %v", err)
	}
}

func TestConfusionOptions(t *testing.T) {
	tests := []struct {
		normalize bool
		set       string
		title     string
	}{
		{false, "test", "Confusion matrix (test)"},
		{true, "validation", "Confusion matrix (validation)"},
	}

	for _, tt := range tests {
		t.Run(tt.set, func(t *testing.T) {
			cfg := config.Default()
			cfg.NormalizeConfusion = tt.normalize
			opts := confusionOptions(cfg, tt.set)
			if opts.Normalize != tt.normalize {
				t.Errorf("Normalize = %v, want %v", opts.Normalize, tt.normalize)
			}
			if opts.Title != tt.title {
				t.Errorf("Title = %q, want %q", opts.Title, tt.title)
			}
		})
	}
}

func TestTrainRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Epochs = 0
	if _, err := Train(context.Background(), cfg); err == nil {
		t.Error("expected error for zero epochs")
	}
}

func TestTrainCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Train(ctx, cfg); err == nil {
		t.Error("expected error for cancelled context")
	}
}

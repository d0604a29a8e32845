package dataset

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ironsheep/asl-classifier/internal/imaging"
)

// writeImage writes a solid gray PNG at path, creating parent directories.
func writeImage(t *testing.T, path string, level uint8) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// createTrainTree builds a training root with the given images per category.
// Category i is filled with gray level 40*(i+1).
func createTrainTree(t *testing.T, categories []string, perCategory int) string {
	t.Helper()
	root := t.TempDir()
	for i, c := range categories {
		for j := 0; j < perCategory; j++ {
			writeImage(t, filepath.Join(root, c, c+string(rune('a'+j))+".png"), uint8(40*(i+1)))
		}
	}
	return root
}

func newSet(n, size, classes int) *Set {
	s := &Set{ImageSize: size}
	for i := 0; i < n; i++ {
		sample := make([]uint8, size*size)
		for k := range sample {
			sample[k] = uint8(i)
		}
		s.Samples = append(s.Samples, sample)
		s.Labels = append(s.Labels, i%classes)
	}
	return s
}

func TestLabelEncoder(t *testing.T) {
	enc, err := NewLabelEncoder([]string{"space", "B", "del", "A", "nothing"})
	if err != nil {
		t.Fatalf("NewLabelEncoder failed: %v", err)
	}

	want := []string{"A", "B", "del", "nothing", "space"}
	if got := enc.Classes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Classes: got %v, want %v", got, want)
	}
	if enc.Len() != 5 {
		t.Errorf("Len: got %d, want 5", enc.Len())
	}

	for i, name := range want {
		label, err := enc.Transform(name)
		if err != nil || label != i {
			t.Errorf("Transform(%q) = %d, %v; want %d", name, label, err, i)
		}
		back, err := enc.Inverse(i)
		if err != nil || back != name {
			t.Errorf("Inverse(%d) = %q, %v; want %q", i, back, err, name)
		}
	}

	if _, err := enc.Transform("Q"); err == nil {
		t.Error("Transform should fail for an unknown category")
	}
	if _, err := enc.Inverse(5); err == nil {
		t.Error("Inverse should fail out of range")
	}
	if _, err := enc.Inverse(-1); err == nil {
		t.Error("Inverse should fail for a negative label")
	}
}

func TestLabelEncoder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
	}{
		{"empty", nil},
		{"duplicate", []string{"A", "B", "A"}},
		{"blank", []string{"A", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLabelEncoder(tt.categories); err == nil {
				t.Error("NewLabelEncoder should have failed")
			}
		})
	}
}

func TestLabelEncoder_ClassesIsCopy(t *testing.T) {
	enc, err := NewLabelEncoder([]string{"A", "B"})
	if err != nil {
		t.Fatalf("NewLabelEncoder failed: %v", err)
	}
	enc.Classes()[0] = "Z"
	if got, _ := enc.Inverse(0); got != "A" {
		t.Error("Classes exposed internal state")
	}
}

func TestListCategories(t *testing.T) {
	root := createTrainTree(t, []string{"B", "A", "space"}, 1)
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	got, err := ListCategories(root)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if want := []string{"A", "B", "space"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ListCategories(filepath.Join(root, "missing")); err == nil {
		t.Error("ListCategories should fail for a missing directory")
	}
	if _, err := ListCategories(t.TempDir()); err == nil {
		t.Error("ListCategories should fail without category directories")
	}
}

func TestLoadTraining(t *testing.T) {
	categories := []string{"A", "B", "C"}
	root := createTrainTree(t, categories, 3)

	// An undecodable file is skipped, not fatal.
	if err := os.WriteFile(filepath.Join(root, "B", "broken.jpg"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	enc, err := NewLabelEncoder(categories)
	if err != nil {
		t.Fatalf("NewLabelEncoder failed: %v", err)
	}

	set, err := LoadTraining(context.Background(), LoadOptions{Dir: root, ImageSize: 8, Workers: 4}, enc)
	if err != nil {
		t.Fatalf("LoadTraining failed: %v", err)
	}

	if set.Len() != 9 {
		t.Fatalf("Len: got %d, want 9", set.Len())
	}
	if err := set.Validate(enc.Len()); err != nil {
		t.Errorf("loaded set is inconsistent: %v", err)
	}

	wantLabels := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	if !reflect.DeepEqual(set.Labels, wantLabels) {
		t.Errorf("Labels: got %v, want %v", set.Labels, wantLabels)
	}
	for i, sample := range set.Samples {
		want := uint8(40 * (wantLabels[i] + 1))
		if sample[0] != want {
			t.Errorf("sample %d pixel: got %d, want %d", i, sample[0], want)
		}
	}
	if filepath.Base(set.Paths[0]) != "Aa.png" {
		t.Errorf("first path: got %s", set.Paths[0])
	}
}

func TestLoadTraining_Preprocessor(t *testing.T) {
	root := createTrainTree(t, []string{"A"}, 1)
	enc, _ := NewLabelEncoder([]string{"A"})
	pre, err := imaging.NewPreprocessor(imaging.PreprocessLaplacian)
	if err != nil {
		t.Fatalf("NewPreprocessor failed: %v", err)
	}

	set, err := LoadTraining(context.Background(), LoadOptions{Dir: root, ImageSize: 8, Workers: 1, Preprocessor: pre}, enc)
	if err != nil {
		t.Fatalf("LoadTraining failed: %v", err)
	}
	// A flat image has no edges.
	if set.Samples[0][27] != 0 {
		t.Errorf("expected a zero Laplacian response, got %d", set.Samples[0][27])
	}
}

func TestLoadTraining_MissingCategory(t *testing.T) {
	root := createTrainTree(t, []string{"A"}, 1)
	enc, _ := NewLabelEncoder([]string{"A", "B"})
	if _, err := LoadTraining(context.Background(), LoadOptions{Dir: root, ImageSize: 8, Workers: 1}, enc); err == nil {
		t.Error("LoadTraining should fail when a category directory is missing")
	}
}

func TestLoadTraining_Cancelled(t *testing.T) {
	root := createTrainTree(t, []string{"A", "B"}, 4)
	enc, _ := NewLabelEncoder([]string{"A", "B"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LoadTraining(ctx, LoadOptions{Dir: root, ImageSize: 8, Workers: 2}, enc); err == nil {
		t.Error("LoadTraining should fail on a cancelled context")
	}
}

func TestLoadTest(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "B_test.jpg"), 80)
	writeImage(t, filepath.Join(dir, "A_test.jpg"), 40)
	writeImage(t, filepath.Join(dir, "space_test.jpg"), 120)
	writeImage(t, filepath.Join(dir, "Q_test.jpg"), 10)

	enc, _ := NewLabelEncoder([]string{"A", "B", "del", "space"})
	set, err := LoadTest(context.Background(), LoadOptions{Dir: dir, ImageSize: 8, Workers: 2}, enc)
	if err != nil {
		t.Fatalf("LoadTest failed: %v", err)
	}

	// Q is unknown and skipped; del has no test image.
	if want := []int{0, 1, 3}; !reflect.DeepEqual(set.Labels, want) {
		t.Errorf("Labels: got %v, want %v", set.Labels, want)
	}
}

func TestTestCategory(t *testing.T) {
	tests := map[string]string{
		"A_test.jpg":       "A",
		"nothing_test.jpg": "nothing",
		"dir/del_x_y.png":  "del",
		"B.jpg":            "B",
	}
	for in, want := range tests {
		if got := TestCategory(in); got != want {
			t.Errorf("TestCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetValidate(t *testing.T) {
	good := newSet(4, 3, 2)
	if err := good.Validate(2); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Set)
	}{
		{"label count", func(s *Set) { s.Labels = s.Labels[:2] }},
		{"path count", func(s *Set) { s.Paths = []string{"x"} }},
		{"sample size", func(s *Set) { s.Samples[1] = s.Samples[1][:2] }},
		{"label range", func(s *Set) { s.Labels[0] = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSet(4, 3, 2)
			tt.modify(s)
			if err := s.Validate(2); err == nil {
				t.Error("Validate should have failed")
			}
		})
	}
}

func TestSplit(t *testing.T) {
	set := newSet(20, 2, 4)

	train, val, err := Split(set, 0.1, 2)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if train.Len() != 18 || val.Len() != 2 {
		t.Errorf("sizes: got %d/%d, want 18/2", train.Len(), val.Len())
	}

	seen := map[uint8]bool{}
	for _, s := range append(train.Samples, val.Samples...) {
		if seen[s[0]] {
			t.Fatalf("sample %d appears twice", s[0])
		}
		seen[s[0]] = true
	}
	if len(seen) != 20 {
		t.Errorf("split lost samples: %d of 20", len(seen))
	}

	train2, val2, _ := Split(set, 0.1, 2)
	if !reflect.DeepEqual(train.Labels, train2.Labels) || !reflect.DeepEqual(val.Samples, val2.Samples) {
		t.Error("same seed produced a different split")
	}
}

func TestSplit_RoundsUp(t *testing.T) {
	_, val, err := Split(newSet(11, 2, 2), 0.1, 1)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if val.Len() != 2 {
		t.Errorf("validation size: got %d, want ceil(1.1) = 2", val.Len())
	}
}

func TestSplit_Errors(t *testing.T) {
	if _, _, err := Split(newSet(5, 2, 2), 1, 1); err == nil {
		t.Error("Split should reject a fraction of 1")
	}
	if _, _, err := Split(newSet(1, 2, 2), 0.5, 1); err == nil {
		t.Error("Split should fail when nothing is left to train on")
	}
}

func TestSetTensor(t *testing.T) {
	set := newSet(3, 2, 3)
	x := set.Tensor(0.5)

	if got := x.Shape(); !reflect.DeepEqual([]int(got), []int{3, 1, 2, 2}) {
		t.Fatalf("shape: got %v", got)
	}
	data := x.Data().([]float32)
	if data[4] != 0.5 || data[8] != 1 {
		t.Errorf("rescaled values: got %v", data)
	}

	if (&Set{ImageSize: 2}).Tensor(1) != nil {
		t.Error("empty set should produce a nil tensor")
	}
}

func TestOneHot(t *testing.T) {
	y := OneHot([]int{2, 0}, 3)
	want := []float32{0, 0, 1, 1, 0, 0}
	if got := y.Data().([]float32); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGenerator(t *testing.T) {
	set := newSet(10, 2, 5)
	gen, err := Flow(set, 5, 4, 1, nil, 9)
	if err != nil {
		t.Fatalf("Flow failed: %v", err)
	}
	if gen.Steps() != 3 {
		t.Fatalf("Steps: got %d, want 3", gen.Steps())
	}

	gen.Shuffle()
	seen := map[float32]int{}
	for step := 0; step < gen.Steps(); step++ {
		x, y, labels, err := gen.Batch(step)
		if err != nil {
			t.Fatalf("Batch(%d) failed: %v", step, err)
		}
		if x.Shape()[0] != 4 || y.Shape()[0] != 4 || len(labels) != 4 {
			t.Fatalf("batch %d is not full", step)
		}
		if y.Shape()[1] != 5 {
			t.Errorf("one-hot width: got %d, want 5", y.Shape()[1])
		}
		data := x.Data().([]float32)
		for i := 0; i < 4; i++ {
			seen[data[i*4]]++
		}
	}

	// 12 slots over 10 samples: all seen, two of them twice.
	if len(seen) != 10 {
		t.Errorf("epoch covered %d of 10 samples", len(seen))
	}

	if _, _, _, err := gen.Batch(3); err == nil {
		t.Error("Batch should reject an out-of-range step")
	}
}

func TestGenerator_SmallSet(t *testing.T) {
	gen, err := Flow(newSet(3, 2, 3), 3, 8, 1, nil, 1)
	if err != nil {
		t.Fatalf("Flow failed: %v", err)
	}
	if gen.Steps() != 1 {
		t.Fatalf("Steps: got %d, want 1", gen.Steps())
	}
	x, _, _, err := gen.Batch(0)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if x.Shape()[0] != 8 {
		t.Errorf("batch size: got %d, want 8", x.Shape()[0])
	}
}

func TestGenerator_Augmented(t *testing.T) {
	set := newSet(4, 10, 2)
	for _, s := range set.Samples {
		for k := range s {
			s[k] = 0
		}
		s[55] = 255
	}
	aug := imaging.NewAugmenter(imaging.AugmentOptions{WidthShift: 0.3, HeightShift: 0.3}, 4)
	gen, err := Flow(set, 2, 4, 1, aug, 1)
	if err != nil {
		t.Fatalf("Flow failed: %v", err)
	}

	before := append([]uint8(nil), set.Samples[0]...)
	if _, _, _, err := gen.Batch(0); err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if !reflect.DeepEqual(before, set.Samples[0]) {
		t.Error("augmentation modified stored samples")
	}
}

func TestFlow_Errors(t *testing.T) {
	if _, err := Flow(&Set{ImageSize: 2}, 2, 4, 1, nil, 1); err == nil {
		t.Error("Flow should reject an empty set")
	}
	if _, err := Flow(newSet(4, 2, 2), 2, 0, 1, nil, 1); err == nil {
		t.Error("Flow should reject a zero batch size")
	}
	if _, err := Flow(newSet(4, 2, 4), 2, 2, 1, nil, 1); err == nil {
		t.Error("Flow should reject labels outside the class range")
	}
}

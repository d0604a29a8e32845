package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/asl-classifier/internal/imaging"
	"github.com/ironsheep/asl-classifier/internal/logger"
)

// LoadOptions controls how image files become samples.
type LoadOptions struct {
	// Dir is the training root (one subdirectory per category) or the flat
	// test directory.
	Dir string

	ImageSize int

	// Workers bounds the number of images decoded concurrently.
	Workers int

	// Preprocessor runs on every resized image. Nil means no preprocessing.
	Preprocessor *imaging.Preprocessor
}

type loadJob struct {
	path  string
	label int
}

// LoadTraining reads every image below opts.Dir/<category> for each class of
// the encoder. Files that cannot be decoded are skipped and logged at debug
// level. Samples are ordered by category, then by file name.
func LoadTraining(ctx context.Context, opts LoadOptions, enc *LabelEncoder) (*Set, error) {
	var jobs []loadJob
	for label, category := range enc.Classes() {
		dir := filepath.Join(opts.Dir, category)
		names, err := listFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			jobs = append(jobs, loadJob{path: filepath.Join(dir, name), label: label})
		}
	}
	return load(ctx, opts, jobs, "training")
}

// LoadTest reads the flat test directory. Each file's category is the part of
// its name before the first underscore ("A_test.jpg" is category "A"). Files
// whose category is unknown to the encoder are skipped with a warning.
func LoadTest(ctx context.Context, opts LoadOptions, enc *LabelEncoder) (*Set, error) {
	names, err := listFiles(opts.Dir)
	if err != nil {
		return nil, err
	}

	var jobs []loadJob
	for _, name := range names {
		category := TestCategory(name)
		label, err := enc.Transform(category)
		if err != nil {
			logger.S().Warnw("skipping test file with unknown category",
				"file", name, "category", category)
			continue
		}
		jobs = append(jobs, loadJob{path: filepath.Join(opts.Dir, name), label: label})
	}
	return load(ctx, opts, jobs, "test")
}

// TestCategory extracts the category prefix from a test file name.
func TestCategory(name string) string {
	base := filepath.Base(name)
	if i := strings.IndexByte(base, '_'); i >= 0 {
		return base[:i]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func load(ctx context.Context, opts LoadOptions, jobs []loadJob, kind string) (*Set, error) {
	if opts.ImageSize <= 0 {
		return nil, fmt.Errorf("invalid image size %d", opts.ImageSize)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	logger.S().Infow("loading images", "set", kind, "dir", opts.Dir, "files", humanize.Comma(int64(len(jobs))))

	samples := make([][]uint8, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := imaging.LoadGray(job.path, opts.ImageSize)
			if err != nil {
				logger.S().Debugw("skipping unreadable image", "path", job.path, "error", err)
				return nil
			}
			if opts.Preprocessor != nil {
				img = opts.Preprocessor.Apply(img)
			}
			samples[i] = imaging.ToSample(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &Set{ImageSize: opts.ImageSize}
	for i, sample := range samples {
		if sample == nil {
			continue
		}
		set.Samples = append(set.Samples, sample)
		set.Labels = append(set.Labels, jobs[i].label)
		set.Paths = append(set.Paths, jobs[i].path)
	}

	skipped := len(jobs) - set.Len()
	logger.S().Infow("loaded images", "set", kind,
		"samples", humanize.Comma(int64(set.Len())),
		"skipped", skipped,
		"elapsed", time.Since(start).Round(time.Millisecond).String())

	if set.Len() == 0 {
		return nil, fmt.Errorf("no readable images in %s", opts.Dir)
	}
	return set, nil
}

package dataset

import (
	"fmt"
	"os"
	"sort"
)

// LabelEncoder maps category names to dense integer labels.
//
// Categories are sorted lexicographically (byte order) before indices are
// assigned, so uppercase letters precede lowercase names:
// A, B, ..., Z, del, nothing, space.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder fits an encoder on the given categories.
func NewLabelEncoder(categories []string) (*LabelEncoder, error) {
	e := &LabelEncoder{}
	if err := e.Fit(categories); err != nil {
		return nil, err
	}
	return e, nil
}

// Fit replaces the encoder's classes. Duplicate or empty names are rejected.
func (e *LabelEncoder) Fit(categories []string) error {
	if len(categories) == 0 {
		return fmt.Errorf("no categories to encode")
	}
	classes := append([]string(nil), categories...)
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if c == "" {
			return fmt.Errorf("empty category name")
		}
		if _, dup := index[c]; dup {
			return fmt.Errorf("duplicate category %q", c)
		}
		index[c] = i
	}

	e.classes = classes
	e.index = index
	return nil
}

// Transform returns the label of a category.
func (e *LabelEncoder) Transform(name string) (int, error) {
	i, ok := e.index[name]
	if !ok {
		return -1, fmt.Errorf("unknown category %q", name)
	}
	return i, nil
}

// Inverse returns the category of a label.
func (e *LabelEncoder) Inverse(label int) (string, error) {
	if label < 0 || label >= len(e.classes) {
		return "", fmt.Errorf("label %d out of range [0, %d)", label, len(e.classes))
	}
	return e.classes[label], nil
}

// Classes returns a copy of the sorted category names.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Len returns the number of classes.
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// ListCategories returns the sorted names of the subdirectories of dir.
// Regular files are ignored.
func ListCategories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	var categories []string
	for _, entry := range entries {
		if entry.IsDir() {
			categories = append(categories, entry.Name())
		}
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no category directories in %s", dir)
	}
	sort.Strings(categories)
	return categories, nil
}

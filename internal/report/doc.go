// Package report renders evaluation and training results to files: confusion
// matrix heat maps, training curves and the per-epoch CSV log.
package report

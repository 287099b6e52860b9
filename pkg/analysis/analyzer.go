// Package analysis drives report generation over many candidate files.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/northcutted/drvscan/pkg/peimage"
	"github.com/northcutted/drvscan/pkg/report"
)

// MaxWorkers caps the default pool size.
const MaxWorkers = 8

// Runner analyses a single candidate file.
type Runner interface {
	FromDriver(path string) (*report.Report, error)
}

// Options tune a batch run.
type Options struct {
	// Workers bounds the number of files analysed concurrently. Zero picks a
	// default from the CPU count.
	Workers int
	Logger  *slog.Logger
}

// Failure records a file that produced no report.
type Failure struct {
	Path string
	Kind string
	Err  error
}

// Batch holds the outcome of a directory scan in directory order.
type Batch struct {
	Reports  []*report.Report
	Failures []Failure
}

// DefaultWorkers returns the pool size used when Options.Workers is zero.
func DefaultWorkers() int {
	return min(runtime.NumCPU(), MaxWorkers)
}

// Candidates lists the regular files directly inside dir, sorted by name.
// Subdirectories are not descended into; symlinks to regular files are kept.
func Candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.Type().IsRegular() {
			paths = append(paths, path)
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				paths = append(paths, path)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// AnalyzeDirectory runs r over every candidate in dir with a bounded worker
// pool. A failing file is logged and recorded in Batch.Failures; it never
// stops the scan. Cancelling ctx skips files that have not started yet.
func AnalyzeDirectory(ctx context.Context, dir string, r Runner, opts Options) (*Batch, error) {
	paths, err := Candidates(dir)
	if err != nil {
		return nil, err
	}
	return AnalyzeFiles(ctx, paths, r, opts), nil
}

// AnalyzeFiles runs r over paths and returns the results in input order.
func AnalyzeFiles(ctx context.Context, paths []string, r Runner, opts Options) *Batch {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	reports := make([]*report.Report, len(paths))
	failures := make([]*Failure, len(paths))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			failures[i] = fail(logger, path, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failures[i] = fail(logger, path, err)
				return nil
			}
			logger.Debug("analyzing driver", "path", path)
			rep, err := r.FromDriver(path)
			if err != nil {
				failures[i] = fail(logger, path, err)
				return nil
			}
			reports[i] = rep
			return nil
		})
	}
	// Workers never return an error; per-file failures are collected above.
	_ = g.Wait()

	batch := &Batch{Reports: make([]*report.Report, 0, len(paths))}
	for i := range paths {
		if reports[i] != nil {
			batch.Reports = append(batch.Reports, reports[i])
		}
		if failures[i] != nil {
			batch.Failures = append(batch.Failures, *failures[i])
		}
	}
	return batch
}

func fail(logger *slog.Logger, path string, err error) *Failure {
	kind := peimage.Kind(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = "Cancelled"
	}
	logger.Error("failed to analyze driver", "path", path, "kind", kind, "error", err)
	return &Failure{Path: path, Kind: kind, Err: err}
}

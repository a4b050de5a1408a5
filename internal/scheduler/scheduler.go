// Package scheduler orchestrates compression of directory trees. A run moves
// through four phases: enumerate eligible files, decide on a strategy,
// execute jobs sequentially or across a worker pool, and collect one outcome
// per file. Per-file failures never abort the run; the scheduler fails only
// when the root itself cannot be enumerated.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"file-compressor-go/internal/engine"
	"file-compressor-go/internal/monitor"
	"file-compressor-go/internal/naming"
	"file-compressor-go/internal/policy"
	"file-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// housekeepingFiles are platform noise that is never worth compressing.
var housekeepingFiles = map[string]struct{}{
	".DS_Store":   {},
	"Thumbs.db":   {},
	"desktop.ini": {},
}

// Options configures one scheduler run.
type Options struct {
	// BaseLevel is the requested compression level in [1, 9]. It is
	// adjusted per file by content class before dispatch.
	BaseLevel int

	// TotalUnits is the processing-unit budget; zero means all available.
	TotalUnits int

	// Op selects compression or decompression for the whole run.
	Op engine.Operation
}

// Scheduler drives engine jobs over a directory tree.
type Scheduler struct {
	engine *engine.Engine
	mon    monitor.Monitor
	log    *logrus.Logger
	stats  *statistics.Statistics
}

// New returns a Scheduler. stats may be nil when no counters are wanted.
func New(eng *engine.Engine, mon monitor.Monitor, log *logrus.Logger, stats *statistics.Statistics) *Scheduler {
	return &Scheduler{engine: eng, mon: mon, log: log, stats: stats}
}

// Run compresses or decompresses every eligible file under rootPath and
// returns one outcome per file. It returns an error only when rootPath does
// not exist or is not a directory; anything that goes wrong with an
// individual file is reported inside its outcome.
func (s *Scheduler) Run(ctx context.Context, rootPath string, opts Options) ([]engine.Outcome, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", rootPath)
	}

	units := opts.TotalUnits
	if units <= 0 {
		units = s.mon.NumCPU()
	}

	files := s.enumerate(rootPath, opts.Op)
	if len(files) == 0 {
		return []engine.Outcome{}, nil
	}

	if s.stats != nil {
		for range files {
			s.stats.IncrementFilesFound()
		}
	}

	// A single file needs no strategy: it gets the full thread budget.
	if len(files) == 1 {
		return []engine.Outcome{s.runOne(ctx, files[0], units, opts)}, nil
	}

	snap := s.mon.Sample()
	strategy := policy.ChooseStrategy(sizesOf(files), s.mon.AvailableMemory(), units, snap.CPUPercent)

	s.log.WithFields(logrus.Fields{
		"files":            len(files),
		"sequential":       strategy.Sequential,
		"threads_per_file": strategy.ThreadsPerFile,
		"threshold":        strategy.Threshold,
		"average_size":     strategy.AverageSize,
		"cpu_percent":      snap.CPUPercent,
	}).Info("Folder strategy decided")

	if strategy.Sequential {
		return s.runSequential(ctx, files, units, opts), nil
	}
	return s.runParallel(ctx, files, strategy.ThreadsPerFile, units, opts), nil
}

// RunFile processes a single file with the full thread budget. Used by
// collaborators for file (non-folder) requests.
func (s *Scheduler) RunFile(ctx context.Context, path string, opts Options) (engine.Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("input path not accessible: %w", err)
	}
	if info.IsDir() {
		return engine.Outcome{}, fmt.Errorf("input path is a directory: %s", path)
	}

	units := opts.TotalUnits
	if units <= 0 {
		units = s.mon.NumCPU()
	}
	if s.stats != nil {
		s.stats.IncrementFilesFound()
	}
	return s.runOne(ctx, path, units, opts), nil
}

// enumerate walks the tree collecting eligible files. For compression,
// entries already carrying the compressed suffix are excluded so a prior
// run's outputs are never compressed twice; for decompression only such
// entries are eligible.
func (s *Scheduler) enumerate(rootPath string, op engine.Operation) []string {
	var files []string
	_ = filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			s.log.WithError(err).WithField("path", path).Warn("Skipping unreadable entry")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := housekeepingFiles[d.Name()]; ok {
			return nil
		}
		if naming.IsCompressed(path) != (op == engine.OpDecompress) {
			if s.stats != nil {
				s.stats.IncrementFilesSkipped()
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files
}

// runSequential processes files one at a time in enumeration order, each
// with the full thread budget. A failed file does not halt the rest.
func (s *Scheduler) runSequential(ctx context.Context, files []string, units int, opts Options) []engine.Outcome {
	outcomes := make([]engine.Outcome, 0, len(files))
	for _, path := range files {
		outcomes = append(outcomes, s.runOne(ctx, path, units, opts))
	}
	return outcomes
}

// runParallel fans jobs out across a worker pool. Results are keyed by index
// so each outcome stays attributable to its input file no matter the
// completion order. Total thread oversubscription is bounded only by the
// per-job allocation, not by a global semaphore.
func (s *Scheduler) runParallel(ctx context.Context, files []string, threadsPerFile, units int, opts Options) []engine.Outcome {
	type job struct {
		index int
		path  string
	}
	type result struct {
		index   int
		outcome engine.Outcome
	}

	numWorkers := max(units, 2)
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	jobs := make(chan job, len(files))
	resultsCh := make(chan result, len(files))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				resultsCh <- result{index: j.index, outcome: s.runOne(ctx, j.path, threadsPerFile, opts)}
			}
		}()
	}

	for i, path := range files {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()
	close(resultsCh)

	outcomes := make([]engine.Outcome, len(files))
	for r := range resultsCh {
		outcomes[r.index] = r.outcome
	}
	return outcomes
}

// runOne builds and executes one job, converting any unexpected fault into
// a failure outcome so the caller never observes a missing result.
func (s *Scheduler) runOne(ctx context.Context, path string, threads int, opts Options) (out engine.Outcome) {
	job, err := s.buildJob(path, threads, opts)
	if err != nil {
		out = engine.Outcome{InputPath: path, Err: err.Error()}
		s.record(out, opts.Op)
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			out = engine.Outcome{
				InputPath:  job.InputPath,
				OutputPath: job.OutputPath,
				Err:        fmt.Sprintf("unexpected fault: %v", r),
			}
			s.log.WithField("file", job.InputPath).Errorf("Job panicked: %v", r)
			s.record(out, opts.Op)
		}
	}()

	out = s.engine.Run(ctx, job)
	s.record(out, opts.Op)
	return out
}

// buildJob derives the output path and the per-file compression level.
func (s *Scheduler) buildJob(path string, threads int, opts Options) (engine.Job, error) {
	job := engine.Job{
		InputPath: path,
		Threads:   threads,
		Op:        opts.Op,
	}

	if opts.Op == engine.OpDecompress {
		output, ok := naming.DecompressedPath(path)
		if !ok {
			return engine.Job{}, fmt.Errorf("not a compressed file: %s", path)
		}
		job.OutputPath = output
		return job, nil
	}

	class := policy.Classify(path)
	job.Level = policy.AdjustLevel(opts.BaseLevel, class)
	job.OutputPath = naming.CompressedPath(path)

	s.log.WithFields(logrus.Fields{
		"file":    path,
		"class":   class.String(),
		"level":   job.Level,
		"threads": threads,
	}).Debug("Job prepared")

	return job, nil
}

func (s *Scheduler) record(out engine.Outcome, op engine.Operation) {
	if s.stats == nil {
		return
	}
	s.stats.IncrementFilesProcessed()
	if !out.Success {
		s.stats.IncrementFilesWithErrors()
		s.stats.AddError(out.InputPath, op.String(), out.Err)
		return
	}
	if op == engine.OpDecompress {
		s.stats.IncrementFilesDecompressed()
	} else {
		s.stats.IncrementFilesCompressed()
	}
	s.stats.AddBytesIn(out.OriginalSize)
	s.stats.AddBytesOut(out.ResultSize)
}

func sizesOf(files []string) []int64 {
	sizes := make([]int64, 0, len(files))
	for _, path := range files {
		if info, err := os.Stat(path); err == nil {
			sizes = append(sizes, info.Size())
		} else {
			sizes = append(sizes, 0)
		}
	}
	return sizes
}

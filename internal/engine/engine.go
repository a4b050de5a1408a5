// Package engine drives the external parallel compression tool (pigz) as a
// child process. Each call owns its own process lifecycle and file handles;
// the engine itself is stateless between calls.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"file-compressor-go/internal/monitor"

	"github.com/sirupsen/logrus"
)

// Operation selects the direction of a compression job.
type Operation int

const (
	OpCompress Operation = iota
	OpDecompress
)

// String returns the operation name.
func (op Operation) String() string {
	if op == OpDecompress {
		return "decompress"
	}
	return "compress"
}

// Job is one unit of work. Jobs are created per discovered file and consumed
// exactly once; they share no mutable state.
type Job struct {
	InputPath  string
	OutputPath string
	Level      int
	Threads    int
	Op         Operation
}

// Outcome is the immutable result of one job.
type Outcome struct {
	InputPath  string
	OutputPath string
	Success    bool

	// OriginalSize is the input size in bytes; ResultSize the output size.
	// Either is zero when it could not be measured before a failure.
	OriginalSize int64
	ResultSize   int64

	// Err carries a human-readable description for failed jobs.
	Err string

	UsageBefore *monitor.Snapshot
	UsageAfter  *monitor.Snapshot
}

// Sampler produces resource snapshots around a job. Implementations should
// be cheap or sampled concurrently; the engine calls it inline.
type Sampler interface {
	Sample() monitor.Snapshot
}

// Engine invokes the external tool for compress, decompress and verify
// operations on single files.
type Engine struct {
	runner  Runner
	log     *logrus.Logger
	sampler Sampler

	// timeout bounds each child-process wait; zero means no timeout.
	timeout time.Duration

	// keepSource disables best-effort deletion of the input file after a
	// verified successful compression.
	keepSource bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds every child-process wait, converting a hung tool into
// a failure outcome instead of blocking the scheduler indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithSampler records resource usage before and after each job.
func WithSampler(s Sampler) Option {
	return func(e *Engine) { e.sampler = s }
}

// WithKeepSource disables deletion of source files after compression.
func WithKeepSource() Option {
	return func(e *Engine) { e.keepSource = true }
}

// New returns an Engine using the given runner and logger.
func New(runner Runner, log *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{runner: runner, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compress runs the job's input through the tool and writes the compressed
// stream to the output path, then verifies the output with the tool's test
// mode. Integrity failure is a job failure even though the write succeeded.
func (e *Engine) Compress(ctx context.Context, job Job) Outcome {
	out := Outcome{InputPath: job.InputPath, OutputPath: job.OutputPath}

	if e.sampler != nil {
		before := e.sampler.Sample()
		out.UsageBefore = &before
	}

	info, err := os.Stat(job.InputPath)
	if err != nil {
		out.Err = fmt.Sprintf("stat source: %v", err)
		return out
	}
	out.OriginalSize = info.Size()

	args := []string{"-p", fmt.Sprint(job.Threads), fmt.Sprintf("-%d", job.Level), "-c"}
	if err := e.stream(ctx, args, job.InputPath, job.OutputPath); err != nil {
		out.Err = err.Error()
		return out
	}

	if !e.VerifyIntegrity(ctx, job.OutputPath) {
		out.Err = fmt.Sprintf("integrity check failed for %s", job.OutputPath)
		return out
	}

	if resInfo, err := os.Stat(job.OutputPath); err == nil {
		out.ResultSize = resInfo.Size()
	}

	if e.sampler != nil {
		after := e.sampler.Sample()
		out.UsageAfter = &after
	}

	// Cleanup is not part of the correctness contract: a source file that
	// cannot be deleted is logged and the job still succeeds.
	if !e.keepSource {
		if err := os.Remove(job.InputPath); err != nil {
			e.log.WithError(err).WithField("file", job.InputPath).
				Warn("Failed to delete source after compression")
		}
	}

	out.Success = true
	return out
}

// Decompress streams the job's input through the tool in decompress mode.
func (e *Engine) Decompress(ctx context.Context, job Job) Outcome {
	out := Outcome{InputPath: job.InputPath, OutputPath: job.OutputPath}

	if e.sampler != nil {
		before := e.sampler.Sample()
		out.UsageBefore = &before
	}

	info, err := os.Stat(job.InputPath)
	if err != nil {
		out.Err = fmt.Sprintf("stat source: %v", err)
		return out
	}
	out.OriginalSize = info.Size()

	args := []string{"-d", "-p", fmt.Sprint(job.Threads), "-c"}
	if err := e.stream(ctx, args, job.InputPath, job.OutputPath); err != nil {
		out.Err = err.Error()
		return out
	}

	if resInfo, err := os.Stat(job.OutputPath); err == nil {
		out.ResultSize = resInfo.Size()
	}

	if e.sampler != nil {
		after := e.sampler.Sample()
		out.UsageAfter = &after
	}

	out.Success = true
	return out
}

// VerifyIntegrity runs the tool's built-in test mode against path.
func (e *Engine) VerifyIntegrity(ctx context.Context, path string) bool {
	ctx, cancel := e.deadline(ctx)
	defer cancel()
	return e.runner.Run(ctx, []string{"-t", path}, nil, io.Discard) == nil
}

// Run dispatches the job to Compress or Decompress by operation kind.
func (e *Engine) Run(ctx context.Context, job Job) Outcome {
	if job.Op == OpDecompress {
		return e.Decompress(ctx, job)
	}
	return e.Compress(ctx, job)
}

// stream opens the source and destination and runs the tool between them.
// Both handles are released on every exit path.
func (e *Engine) stream(ctx context.Context, args []string, inputPath, outputPath string) error {
	src, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	// Released even when the runner faults; the explicit Close below still
	// surfaces flush errors on the normal path.
	defer dst.Close()

	ctx, cancel := e.deadline(ctx)
	defer cancel()

	if err := e.runner.Run(ctx, args, src, dst); err != nil {
		return fmt.Errorf("tool failed: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

func (e *Engine) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return ctx, func() {}
}

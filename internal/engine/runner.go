package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner is the narrow port the engine drives the external tool through.
// It exists so the engine can be exercised in tests without spawning real
// processes.
type Runner interface {
	// Run invokes the tool with args, feeding stdin and capturing stdout.
	// A nil stdin means the tool reads no input. A non-zero exit status is
	// returned as an error.
	Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error
}

// DefaultBinary is the external parallel gzip implementation.
const DefaultBinary = "pigz"

// PigzRunner runs the pigz binary as a child process.
type PigzRunner struct {
	// Binary overrides the pigz executable path; empty means DefaultBinary.
	Binary string
}

// Run executes the binary, surfacing a non-zero exit status as an error
// that includes the tool's stderr output.
func (r *PigzRunner) Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", binary, strings.Join(args, " "), err)
	}
	return nil
}

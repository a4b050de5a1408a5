package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gzipRunner stands in for the external tool: it implements the same
// argument conventions using an in-process gzip codec, so engine behavior
// can be tested without pigz installed.
type gzipRunner struct{}

func (gzipRunner) Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	switch args[0] {
	case "-t":
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		gr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gr.Close()
		_, err = io.Copy(io.Discard, gr)
		return err
	case "-d":
		gr, err := gzip.NewReader(stdin)
		if err != nil {
			return err
		}
		defer gr.Close()
		_, err = io.Copy(stdout, gr)
		return err
	default:
		gw := gzip.NewWriter(stdout)
		if _, err := io.Copy(gw, stdin); err != nil {
			return err
		}
		return gw.Close()
	}
}

// failingRunner reports a tool failure on every invocation.
type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	return errors.New("exit status 1: corrupt input")
}

// hangingRunner blocks until the context is cancelled.
type hangingRunner struct{}

func (hangingRunner) Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	<-ctx.Done()
	return ctx.Err()
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestCompressSuccess(t *testing.T) {
	dir := t.TempDir()
	content := []byte("compress me, I am very repetitive, very repetitive indeed")
	input := writeTestFile(t, dir, "data.txt", content)
	output := input + ".gz"

	eng := New(gzipRunner{}, testLogger())
	out := eng.Compress(context.Background(), Job{
		InputPath:  input,
		OutputPath: output,
		Level:      6,
		Threads:    2,
		Op:         OpCompress,
	})

	assert.True(t, out.Success)
	assert.Empty(t, out.Err)
	assert.EqualValues(t, len(content), out.OriginalSize)
	assert.Greater(t, out.ResultSize, int64(0))
	assert.FileExists(t, output)

	// Source is deleted after a verified compression.
	_, err := os.Stat(input)
	assert.True(t, os.IsNotExist(err))
}

func TestCompressKeepSource(t *testing.T) {
	dir := t.TempDir()
	input := writeTestFile(t, dir, "data.txt", []byte("keep me around"))

	eng := New(gzipRunner{}, testLogger(), WithKeepSource())
	out := eng.Compress(context.Background(), Job{
		InputPath:  input,
		OutputPath: input + ".gz",
		Level:      6,
		Threads:    1,
	})

	assert.True(t, out.Success)
	assert.FileExists(t, input)
}

func TestCompressMissingSource(t *testing.T) {
	eng := New(gzipRunner{}, testLogger())
	out := eng.Compress(context.Background(), Job{
		InputPath:  "/nonexistent/input.txt",
		OutputPath: "/nonexistent/input.txt.gz",
		Level:      6,
		Threads:    1,
	})

	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "stat source")
	assert.Zero(t, out.ResultSize)
}

func TestCompressToolFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeTestFile(t, dir, "data.txt", []byte("some data"))

	eng := New(failingRunner{}, testLogger())
	out := eng.Compress(context.Background(), Job{
		InputPath:  input,
		OutputPath: input + ".gz",
		Level:      6,
		Threads:    1,
	})

	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "tool failed")
	// The size measured before the failure is still reported.
	assert.EqualValues(t, 9, out.OriginalSize)
	// The source survives a failed compression.
	assert.FileExists(t, input)
}

func TestCompressIntegrityFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeTestFile(t, dir, "data.txt", []byte("some data"))

	// Write garbage output, then fail the verify step.
	eng := New(corruptingRunner{}, testLogger())
	out := eng.Compress(context.Background(), Job{
		InputPath:  input,
		OutputPath: input + ".gz",
		Level:      6,
		Threads:    1,
	})

	assert.False(t, out.Success)
	assert.Contains(t, out.Err, "integrity check failed")
	assert.FileExists(t, input)
}

// corruptingRunner writes output that will not pass the verify step.
type corruptingRunner struct{}

func (corruptingRunner) Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if args[0] == "-t" {
		return errors.New("exit status 1: invalid compressed data")
	}
	_, err := stdout.Write([]byte("not gzip at all"))
	return err
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := []byte("round trip payload: the bytes that come back must equal the bytes that went in")
	input := writeTestFile(t, dir, "payload.txt", content)
	compressed := input + ".gz"

	eng := New(gzipRunner{}, testLogger())

	out := eng.Compress(context.Background(), Job{
		InputPath:  input,
		OutputPath: compressed,
		Level:      9,
		Threads:    4,
		Op:         OpCompress,
	})
	require.True(t, out.Success, out.Err)

	back := eng.Decompress(context.Background(), Job{
		InputPath:  compressed,
		OutputPath: input,
		Threads:    4,
		Op:         OpDecompress,
	})
	require.True(t, back.Success, back.Err)
	assert.EqualValues(t, out.ResultSize, back.OriginalSize)

	restored, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, content, restored)
}

func TestVerifyIntegrity(t *testing.T) {
	dir := t.TempDir()
	input := writeTestFile(t, dir, "data.txt", []byte("verify this"))

	eng := New(gzipRunner{}, testLogger(), WithKeepSource())
	out := eng.Compress(context.Background(), Job{
		InputPath:  input,
		OutputPath: input + ".gz",
		Level:      6,
		Threads:    1,
	})
	require.True(t, out.Success)

	assert.True(t, eng.VerifyIntegrity(context.Background(), input+".gz"))

	bad := writeTestFile(t, dir, "bad.gz", []byte("definitely not gzip"))
	assert.False(t, eng.VerifyIntegrity(context.Background(), bad))
}

func TestTimeoutConvertsHangIntoFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeTestFile(t, dir, "data.txt", []byte("slow"))

	eng := New(hangingRunner{}, testLogger(), WithTimeout(50*time.Millisecond))

	done := make(chan Outcome, 1)
	go func() {
		done <- eng.Compress(context.Background(), Job{
			InputPath:  input,
			OutputPath: input + ".gz",
			Level:      6,
			Threads:    1,
		})
	}()

	select {
	case out := <-done:
		assert.False(t, out.Success)
		assert.NotEmpty(t, out.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not return after timeout")
	}
}

func TestRunDispatchesByOperation(t *testing.T) {
	dir := t.TempDir()
	content := []byte("dispatch test content")
	input := writeTestFile(t, dir, "a.txt", content)

	eng := New(gzipRunner{}, testLogger())

	out := eng.Run(context.Background(), Job{
		InputPath:  input,
		OutputPath: input + ".gz",
		Level:      6,
		Threads:    1,
		Op:         OpCompress,
	})
	require.True(t, out.Success)

	back := eng.Run(context.Background(), Job{
		InputPath:  input + ".gz",
		OutputPath: input,
		Threads:    1,
		Op:         OpDecompress,
	})
	require.True(t, back.Success)

	restored, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, content, restored)
}

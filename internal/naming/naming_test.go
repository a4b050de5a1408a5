package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain lowercase", "report.txt", "report.txt"},
		{"uppercase lowered", "Report.TXT", "report.txt"},
		{"unicode replaced", "Coöl Fïle.CSV", "co_l_f_le.csv"},
		{"spaces and punctuation", "my file (1).tar", "my_file__1_.tar"},
		{"no extension", "README", "readme"},
		{"dotfile", ".bashrc", "_bashrc"},
		{"path traversal stripped", "../../etc/passwd", "passwd"},
		{"windows separators", `..\..\boot.ini`, "______boot.ini"},
		{"empty becomes underscore", "", "_"},
		{"digits preserved", "data2024.csv", "data2024.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

func TestSanitizeNeverProducesSeparators(t *testing.T) {
	inputs := []string{"a/b/c.txt", "/abs/path.gz", "dir/../../x", "no.sep"}
	for _, in := range inputs {
		out := Sanitize(in)
		assert.NotContains(t, out, "/")
		assert.NotContains(t, out, `\`)
	}
}

func TestCompressedPath(t *testing.T) {
	assert.Equal(t, "file.txt.gz", CompressedPath("file.txt"))
}

func TestDecompressedPath(t *testing.T) {
	path, ok := DecompressedPath("file.txt.gz")
	assert.True(t, ok)
	assert.Equal(t, "file.txt", path)

	// Exactly one suffix is stripped.
	path, ok = DecompressedPath("file.txt.gz.gz")
	assert.True(t, ok)
	assert.Equal(t, "file.txt.gz", path)

	_, ok = DecompressedPath("file.txt")
	assert.False(t, ok)
}

func TestIsCompressed(t *testing.T) {
	assert.True(t, IsCompressed("a.txt.gz"))
	assert.False(t, IsCompressed("a.txt"))
	assert.False(t, IsCompressed("a.gzip"))
}

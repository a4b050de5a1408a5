package naming

import (
	"path/filepath"
	"strings"
)

// CompressedSuffix is the extension appended to compressed output files.
const CompressedSuffix = ".gz"

// Sanitize normalizes an untrusted file name into a safe path component.
// The base name is mapped rune-wise: ASCII letters are lowercased, digits
// pass through, and every other rune becomes a single underscore. The
// extension is normalized the same way and preserved. Any directory
// components in the input are discarded first, so the result can never
// traverse out of its target directory.
func Sanitize(name string) string {
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "_"
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		// Dotfiles like ".bashrc" have no base; treat the whole name as base.
		base = ext
		ext = ""
	}

	sanitized := mapRunes(base)
	if ext != "" {
		sanitized += "." + mapRunes(ext[1:])
	}
	return sanitized
}

// mapRunes lowercases ASCII letters, keeps digits, and replaces every other
// rune with a single underscore. The mapping is total and deterministic.
func mapRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// CompressedPath returns the output path for compressing the given input.
func CompressedPath(input string) string {
	return input + CompressedSuffix
}

// DecompressedPath strips exactly one trailing compressed suffix from the
// given path. The second return value reports whether the suffix was present.
func DecompressedPath(input string) (string, bool) {
	if !strings.HasSuffix(input, CompressedSuffix) {
		return input, false
	}
	return strings.TrimSuffix(input, CompressedSuffix), true
}

// IsCompressed reports whether the path already carries the compressed suffix.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, CompressedSuffix)
}

// Package policy holds the pure decision logic of the compression service:
// content classification, compression level adjustment, per-file thread
// allocation, and the sequential-vs-parallel folder strategy.
package policy

import (
	"math"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Compression level bounds accepted by the external tool.
const (
	MinLevel = 1
	MaxLevel = 9
)

// Dynamic size thresholds for the folder strategy.
const (
	DefaultSizeThreshold   = 100 * 1024 * 1024
	LowMemorySizeThreshold = 50 * 1024 * 1024
	lowMemoryBound         = 2 * 1024 * 1024 * 1024
)

// ContentClass is the coarse content classification used to tune the
// compression level.
type ContentClass int

const (
	// ClassUnknown leaves the requested level unchanged.
	ClassUnknown ContentClass = iota
	// ClassText compresses well; the level is raised.
	ClassText
	// ClassBinaryMedia (images, video, audio) is already entropy-dense;
	// the level is lowered to save CPU for little gain.
	ClassBinaryMedia
)

// String returns a human-readable name for the content class.
func (c ContentClass) String() string {
	switch c {
	case ClassText:
		return "text"
	case ClassBinaryMedia:
		return "binary-media"
	default:
		return "unknown"
	}
}

// Classify inspects the file's leading bytes to determine its content class.
// Detection failures classify as unknown rather than erroring; the class is
// only a tuning hint.
func Classify(path string) ContentClass {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ClassUnknown
	}
	return classifyMIME(mtype.String())
}

func classifyMIME(mime string) ContentClass {
	switch {
	case strings.HasPrefix(mime, "text/"):
		return ClassText
	case strings.HasPrefix(mime, "image/"),
		strings.HasPrefix(mime, "video/"),
		strings.HasPrefix(mime, "audio/"):
		return ClassBinaryMedia
	default:
		return ClassUnknown
	}
}

// AdjustLevel adapts the requested compression level to the file's content
// class. Text gets two extra levels, binary media gives one back, unknown
// content keeps the request. The result is always within [MinLevel, MaxLevel].
func AdjustLevel(base int, class ContentClass) int {
	switch class {
	case ClassText:
		return min(base+2, MaxLevel)
	case ClassBinaryMedia:
		return max(base-1, MinLevel)
	default:
		return clampLevel(base)
	}
}

func clampLevel(level int) int {
	return max(MinLevel, min(level, MaxLevel))
}

// ThreadsPerFile allocates tool threads per concurrent file. Naively dividing
// total units by file count starves throughput under contention and wastes
// cores when idle, so the divisor is tiered by current CPU load.
func ThreadsPerFile(totalUnits, fileCount int, cpuLoadPercent float64) int {
	if fileCount <= 0 {
		return totalUnits
	}

	var threads int
	switch {
	case cpuLoadPercent >= 70:
		threads = totalUnits / (fileCount * 2)
	case cpuLoadPercent >= 40:
		threads = totalUnits / int(math.Ceil(float64(fileCount)*1.5))
	default:
		threads = totalUnits / fileCount
	}

	return max(1, threads)
}

// FolderStrategy records how a folder's files will be scheduled.
type FolderStrategy struct {
	// Sequential means files run one at a time, each with the full thread
	// budget. Chosen when average file size exceeds the threshold, to avoid
	// memory pressure and IO thrashing from many large concurrent streams.
	Sequential bool

	// ThreadsPerFile is the tool thread allocation for each concurrent job
	// under the parallel strategy.
	ThreadsPerFile int

	// Threshold is the dynamic size threshold that drove the decision.
	Threshold int64

	// AverageSize is the mean file size the decision was based on.
	AverageSize int64
}

// ChooseStrategy decides between sequential and parallel folder processing.
// The size threshold drops to 50MB when available memory is under 2GiB.
func ChooseStrategy(fileSizes []int64, availableMemory uint64, totalUnits int, cpuLoadPercent float64) FolderStrategy {
	threshold := int64(DefaultSizeThreshold)
	if availableMemory < lowMemoryBound {
		threshold = LowMemorySizeThreshold
	}

	var total int64
	for _, size := range fileSizes {
		total += size
	}
	var avg int64
	if len(fileSizes) > 0 {
		avg = total / int64(len(fileSizes))
	}

	if avg > threshold {
		return FolderStrategy{
			Sequential:     true,
			ThreadsPerFile: totalUnits,
			Threshold:      threshold,
			AverageSize:    avg,
		}
	}

	return FolderStrategy{
		ThreadsPerFile: ThreadsPerFile(totalUnits, len(fileSizes), cpuLoadPercent),
		Threshold:      threshold,
		AverageSize:    avg,
	}
}

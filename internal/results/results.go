// Package results shapes per-file engine outcomes into the stable response
// records consumed by the route layer and dashboard.
package results

import (
	"fmt"

	"file-compressor-go/internal/engine"
)

// Status values exposed to callers.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// FileResult is one response entry. Size fields are zero when unavailable,
// never omitted, so consumers see a stable shape regardless of status.
type FileResult struct {
	FilePath       string `json:"file_path"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
	Status         string `json:"status"`
}

// Merge converts outcomes into response records, one entry per outcome.
// Entries are attributable by file path; no completion ordering is implied.
func Merge(outcomes []engine.Outcome) []FileResult {
	merged := make([]FileResult, 0, len(outcomes))
	for _, out := range outcomes {
		merged = append(merged, fromOutcome(out))
	}
	return merged
}

func fromOutcome(out engine.Outcome) FileResult {
	res := FileResult{
		FilePath:       out.OutputPath,
		OriginalSize:   out.OriginalSize,
		CompressedSize: out.ResultSize,
		Status:         StatusSuccess,
	}
	if !out.Success {
		res.Status = StatusFailed
		if out.Err != "" {
			res.Status = fmt.Sprintf("%s - %s", StatusFailed, out.Err)
		}
	}
	return res
}

package cleanup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// auditRecord is one JSONL line in the skipped-chunk artifact.
type auditRecord struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	SkippedChunk
}

// writeAudit writes every skipped chunk as one JSON line. The artifact is
// for human review after the job; nothing reads it back.
func writeAudit(path, jobID string, skipped []SkippedChunk) error {
	if path == "" || len(skipped) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audit file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	now := time.Now()
	for _, s := range skipped {
		if err := enc.Encode(auditRecord{JobID: jobID, Timestamp: now, SkippedChunk: s}); err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
	}
	return nil
}

package recorder

import (
	"os"
	"path/filepath"
	"time"
)

// pruneOlderThan removes every file in baseDir (not only hour files) whose
// modification time is older than now-maxAge, adapted from internal/storage/pruner.go's
// age-based eviction, minus the S3-existence check that has no analogue
// here since NDJSON files have no remote copy.
func (r *Recorder) pruneOlderThan(maxAge time.Duration) {
	cutoff := r.now().Add(-maxAge)

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		r.log.Warn().Err(err).Msg("retention prune: failed to list record directory")
		return
	}

	var pruned int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.baseDir, entry.Name())); err == nil {
			pruned++
		}
	}
	if pruned > 0 {
		r.log.Info().Int("pruned", pruned).Msg("retention prune complete")
	}
}

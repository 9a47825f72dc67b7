package environment

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/trajexplore/trajexplore/errs"
)

// prepareResume computes the set of run indices already completed,
// reconciling the archive's `runs` overview table with any
// resume-directory marker files. A trajectory expanded since its last
// store cannot resume: the stored run rows were written against a
// shorter explored range than the in-memory trajectory now has.
func (e *Environment) prepareResume() (map[int]bool, error) {
	if !e.cfg.Resumable {
		return nil, nil
	}
	if e.traj.ExpandedSinceStore() {
		return nil, fmt.Errorf("%w: %s", errs.ErrExpandedSinceStore, e.traj.Name)
	}
	completed, err := e.archive.CompletedIndices(e.traj.Name)
	if err != nil {
		return nil, err
	}
	set := make(map[int]bool, len(completed))
	for _, idx := range completed {
		set[idx] = true
	}
	if e.cfg.ResumeDir != "" {
		markers, err := readResumeMarkers(e.cfg.ResumeDir)
		if err != nil {
			return nil, err
		}
		for idx := range markers {
			set[idx] = true
		}
	}
	return set, nil
}

func resumeMarkerPath(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("run_%08d.done", idx))
}

// writeResumeMarker records idx as complete in the resume directory.
// Writing the marker after the archive store (not before) keeps it a
// conservative record: a marker on disk implies the store it names
// already succeeded.
func writeResumeMarker(dir string, idx int) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(resumeMarkerPath(dir, idx), nil, 0o644)
}

// readResumeMarkers lists every run_XXXXXXXX.done marker under dir.
func readResumeMarkers(dir string) (map[int]bool, error) {
	out := make(map[int]bool)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasPrefix(name, "run_") || !strings.HasSuffix(name, ".done") {
			continue
		}
		idxStr := strings.TrimSuffix(strings.TrimPrefix(name, "run_"), ".done")
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		out[idx] = true
	}
	return out, nil
}

package parse

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/simsift/simsift/pkg/results"
	"github.com/simsift/simsift/pkg/utils/errcollection"
)

// Files parses the given result files on a worker-per-file model bounded by
// the available cores. Each file produces immutable runs which are merged by
// concatenation. A failed read of one file does not abort the rest: per-file
// errors are returned in the failures map. The only hard error is a duplicate
// run identity across the merged set.
func Files(paths []string) (Result, map[string]error, error) {
	type outcome struct {
		path   string
		result Result
		err    error
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(paths) {
		workers = len(paths)
	}

	pending := make(chan string, len(paths))
	outcomes := make(chan outcome, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range pending {
				result, err := File(path)
				outcomes <- outcome{path: path, result: result, err: err}
			}
		}()
	}

	for _, path := range paths {
		pending <- path
	}
	close(pending)
	wg.Wait()
	close(outcomes)

	// Collect deterministically: merge order follows the input path order, so
	// duplicate reports are stable across invocations.
	byPath := make(map[string]outcome, len(paths))
	for out := range outcomes {
		byPath[out.path] = out
	}

	merged := Result{}
	failures := map[string]error{}
	var duplicates errcollection.ErrorCollection
	for _, path := range paths {
		out := byPath[path]
		if out.err != nil {
			log.Warnf("parse: reading %s failed: %v", path, out.err)
			failures[path] = out.err
			continue
		}

		runs, err := results.Merge(merged.Runs, out.result.Runs)
		if err != nil {
			// Keep scanning so one combined error reports every colliding
			// file, not just the first.
			duplicates.Add(err)
			continue
		}
		merged.Runs = runs
		merged.Diagnostics = append(merged.Diagnostics, out.result.Diagnostics...)
	}

	if err := duplicates.GetErrIfAny(); err != nil {
		return Result{}, failures, err
	}
	return merged, failures, nil
}

// Directory parses every scalar (.sca) and vector (.vec) result file found
// directly in the given directory.
func Directory(path string) (Result, map[string]error, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return Result{}, nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".sca", ".vec":
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(paths)

	return Files(paths)
}

package pipeline

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ajitpratap0/flightprep/pkg/artifact"
	"github.com/ajitpratap0/flightprep/pkg/errors"
)

const (
	flightSuffix = ".csv.bz2"
	plainSuffix  = ".csv"
)

// partitionOf maps a raw file name to its partition id. Compressed yearly
// files are the flight partitions.
func partitionOf(name string) (id string, flights bool, ok bool) {
	if strings.HasPrefix(name, ".") {
		return "", false, false
	}
	switch {
	case strings.HasSuffix(name, flightSuffix):
		return strings.TrimSuffix(name, flightSuffix), true, true
	case strings.HasSuffix(name, plainSuffix):
		return strings.TrimSuffix(name, plainSuffix), false, true
	}
	return "", false, false
}

// Discover lists the raw partitions in dir sorted by file name. Two files
// mapping to the same id are a conflict: they would race on one artifact.
func Discover(dir string) ([]Task, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "datasets directory %s not found", dir)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "list datasets directory").WithDetail("dir", dir)
	}

	seen := make(map[string]string, len(entries))
	var tasks []Task
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id, flights, ok := partitionOf(e.Name())
		if !ok {
			continue
		}
		if err := artifact.ValidateID(id); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "unusable raw file name").WithDetail("file", e.Name())
		}
		if prev, dup := seen[id]; dup {
			return nil, errors.Newf(errors.ErrorTypeConflict,
				"partition %q is provided by both %s and %s", id, prev, e.Name())
		}
		seen[id] = e.Name()
		tasks = append(tasks, Task{Partition: id, Path: filepath.Join(dir, e.Name()), Flights: flights})
	}
	slices.SortFunc(tasks, func(a, b Task) int { return strings.Compare(filepath.Base(a.Path), filepath.Base(b.Path)) })
	return tasks, nil
}

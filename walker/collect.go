package walker

import (
	"iter"

	"go.uber.org/multierr"

	"github.com/gobeaver/nocloud"
)

// Collect drains seq. Skipped subdirectories are combined into warnings;
// a traversal failure is returned as err.
func Collect(seq iter.Seq2[nocloud.FileEntry, error]) (entries []nocloud.FileEntry, warnings error, err error) {
	for entry, e := range seq {
		if e != nil {
			if IsFatal(e) {
				return entries, warnings, e
			}
			warnings = multierr.Append(warnings, e)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, warnings, nil
}

// Files drains seq into the list of file paths, stopping at the first
// traversal failure.
func Files(seq iter.Seq2[nocloud.FileEntry, error]) ([]string, error) {
	entries, _, err := Collect(seq)
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths, err
}

package source

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob expands a filesystem pattern (doublestar syntax, "**" crosses
// directories) into path sources, sorted by path. Directories are skipped.
func Glob(pattern string) ([]InputSource, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, &SourceError{Op: "Glob", Source: pattern, Err: fmt.Errorf("%w: bad pattern", ErrInvalidSource)}
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &SourceError{Op: "Glob", Source: pattern, Err: err}
	}
	sort.Strings(matches)

	out := make([]InputSource, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		out = append(out, NewPathInputSource(m))
	}
	return out, nil
}

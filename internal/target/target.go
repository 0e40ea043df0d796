// Package target decides where on disk a downloaded URL is written.
package target

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFilename is used when a URL has no usable final path segment.
const DefaultFilename = "download"

// FilenameFromURL infers a file name from the last segment of the URL path.
// The segment is percent-decoded once; query and fragment are ignored.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultFilename
	}

	escaped := u.EscapedPath()
	segment := escaped[strings.LastIndex(escaped, "/")+1:]
	if segment == "" {
		return DefaultFilename
	}

	name, err := url.PathUnescape(segment)
	if err != nil {
		name = segment
	}

	// %2F and %5C must not turn a name into a path.
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return DefaultFilename
	}
	return name
}

// Resolve returns the absolute file path a download of rawURL is written to.
//
// An empty output selects the inferred name in the working directory. An
// output naming an existing directory, or ending in a path separator,
// receives the inferred name inside it.
// Any other output is used as the literal file path. The parent directory of
// the result is created if missing; an existing file is overwritten later.
func Resolve(rawURL, output string) (string, error) {
	var outPath string
	switch {
	case output == "":
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		outPath = filepath.Join(cwd, FilenameFromURL(rawURL))
	case isDir(output) || hasTrailingSeparator(output):
		outPath = filepath.Join(output, FilenameFromURL(rawURL))
	default:
		outPath = output
	}

	absPath, err := filepath.Abs(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path %s: %w", outPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", filepath.Dir(absPath), err)
	}

	return absPath, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func hasTrailingSeparator(path string) bool {
	return strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator))
}

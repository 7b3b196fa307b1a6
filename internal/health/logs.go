package health

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLogLines is the /logs default.
const DefaultLogLines = 20

// maxTailBytes bounds how much of a log file is read from its end.
const maxTailBytes = 1 << 20

// LogReader tails the supervised service's log files.
type LogReader struct {
	Dir string
	// Files are tried in order; the first with content wins.
	Files []string
}

// Tail returns the last n lines of the first non-empty log file with a header,
// or a notice when none exists.
func (r LogReader) Tail(n int) string {
	if n <= 0 {
		n = DefaultLogLines
	}
	for _, name := range r.Files {
		lines, err := tailLines(filepath.Join(r.Dir, name), n)
		if err != nil || len(lines) == 0 {
			continue
		}
		return fmt.Sprintf("=== %s (last %d lines) ===\n%s", name, n, strings.Join(lines, "\n"))
	}
	return "No log files found."
}

// tailLines returns up to n trailing lines of the file, ignoring surrounding
// blank space.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	offset := int64(0)
	if info.Size() > maxTailBytes {
		offset = info.Size() - maxTailBytes
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	data, err := io.ReadAll(f)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	content := string(data)
	if offset > 0 {
		// Drop the partial first line.
		if i := strings.IndexByte(content, '\n'); i >= 0 {
			content = content[i+1:]
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

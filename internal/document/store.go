package document

import (
	"fmt"
	"os"
	"path/filepath"
)

// Load reads a document file and splits it into a line sequence, normalizing
// CRLF endings on the way in.
func Load(path string) (Lines, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", path, err)
	}
	return SplitLines(string(data)), nil
}

// Save writes a line sequence atomically: the content lands in a temp file in
// the same directory and is renamed over the target, so a crash mid-write
// never leaves a half-written document behind.
func Save(path string, lines Lines) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".loom-*")
	if err != nil {
		return fmt.Errorf("document: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(lines.Join()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("document: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("document: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("document: replace %s: %w", path, err)
	}
	return nil
}

package docsync

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// OutputFileName is the file written into each profile directory.
const OutputFileName = "llms-source.txt"

// WriteOutput overwrites path with content. The file is locked for the
// duration of the write so overlapping scheduled runs cannot interleave.
func WriteOutput(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	if err := lockedfile.Write(path, strings.NewReader(content), 0o644); err != nil {
		return errors.Wrap(err, "failed to write output file")
	}

	return nil
}

// ReadOutput returns the current content of path, or "" if it does not exist.
func ReadOutput(path string) (string, error) {
	data, err := lockedfile.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to read output file")
	}
	return string(data), nil
}

// Diff returns a unified diff between the previous and new output, or "" when
// they are identical.
func Diff(path, previous, content string) string {
	if previous == content {
		return ""
	}
	return udiff.Unified(path+" (previous)", path, previous, content)
}

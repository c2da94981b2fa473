// Package soul loads, parses, and validates persona soul files.
//
// A soul is a markdown file under the personas root, one per persona,
// organised as personas/<category>/<slug>.md. It is the canonical statement
// of a persona's voice and the source of its drift markers. Before every
// assembly the validator re-hashes the file against the stored hash; a
// persona whose soul fails validation does not speak.
package soul

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidSlug rejects slugs that could escape the personas root.
	ErrInvalidSlug = errors.New("soul: invalid persona slug")
	// ErrNotFound means no soul file exists for the slug under the root.
	ErrNotFound = errors.New("soul: soul file not found")
)

// ValidateSlug rejects empty slugs and any slug containing path separators,
// parent references, or NUL. This runs before any filesystem access.
func ValidateSlug(slug string) error {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSlug)
	}
	if trimmed != slug {
		return fmt.Errorf("%w: leading or trailing whitespace", ErrInvalidSlug)
	}
	if strings.Contains(slug, "..") {
		return fmt.Errorf("%w: parent reference", ErrInvalidSlug)
	}
	if strings.ContainsAny(slug, `/\`) {
		return fmt.Errorf("%w: path separator", ErrInvalidSlug)
	}
	if strings.ContainsRune(slug, 0) {
		return fmt.Errorf("%w: NUL byte", ErrInvalidSlug)
	}
	return nil
}

// Find walks the personas root looking for <slug>.md in any subdirectory
// (categories are free-form) and returns the first match in lexical order.
// The slug must already have passed [ValidateSlug]. Returns [ErrNotFound]
// when no file matches.
func Find(root, slug string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}

	target := slug + ".md"
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != target {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("soul: walk %s: %w", root, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s under %s", ErrNotFound, target, root)
	}

	// The walk cannot leave root, but the contract is explicit: the resolved
	// file must stay inside the personas root.
	rel, err := filepath.Rel(root, found)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: resolves outside personas root", ErrInvalidSlug)
	}
	return found, nil
}

package filesystem

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Root is the path of every file system's top-level directory.
const Root = "/"

// Clean returns the canonical form of p: absolute, no trailing slash, no
// "." or ".." segments. The empty string is the root.
func Clean(p string) string {
	if p == "" {
		return Root
	}

	return path.Clean("/" + p)
}

// Join appends name to dir.
func Join(dir, name string) string {
	return path.Join(Clean(dir), name)
}

// Split returns the parent directory and the last segment of p. The root
// has no parent and an empty name.
func Split(p string) (parent, name string) {
	clean := Clean(p)
	if clean == Root {
		return Root, ""
	}

	parent, name = path.Split(clean)

	return Clean(parent), name
}

// IsRoot reports whether p names the root directory.
func IsRoot(p string) bool {
	return Clean(p) == Root
}

// HasPrefix reports whether p is dir or lies beneath it.
func HasPrefix(p, dir string) bool {
	p, dir = Clean(p), Clean(dir)
	if dir == Root || p == dir {
		return true
	}

	return strings.HasPrefix(p, dir+"/")
}

// ValidateName rejects names that cannot address a single child entry.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsRune(name, '/'):
		return fmt.Errorf("%w: %q contains a slash", ErrInvalidName, name)
	default:
		return nil
	}
}

// EscapePath percent-encodes each segment of a clean path so it can be
// appended to a base URL. Characters like #, ?, % and spaces are encoded
// per segment; the separating slashes are kept.
func EscapePath(p string) string {
	segments := strings.Split(Clean(p), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

package storage

import "strings"

// PathResolver maps logical blob paths onto object keys under a root prefix.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver for root. The root always ends with
// exactly one slash; an empty root means "/".
func NewPathResolver(root string) PathResolver {
	root = strings.TrimRight(root, "/") + "/"
	return PathResolver{root: root}
}

// Root returns the normalized root prefix.
func (r PathResolver) Root() string {
	return r.root
}

// Resolve joins path onto the root and strips a single leading and a single
// trailing slash. An empty path resolves to the root itself. Nothing else is
// validated or cleaned.
func (r PathResolver) Resolve(path string) string {
	key := r.root
	if path != "" {
		key = r.root + path
	}
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimSuffix(key, "/")
	return key
}

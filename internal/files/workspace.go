package files

import (
	"fmt"
	"path/filepath"
)

// ErrWorkspaceNotAllowed marks workspace roots outside the configured
// allowlist or inside a system directory.
var ErrWorkspaceNotAllowed = fmt.Errorf("workspace path is not allowed")

// System directories never usable as a workspace root, regardless of the
// configured allowlist.
var forbiddenRoots = []string{
	"/System",
	"/Library",
	"/private",
	"/etc",
	"/usr",
	"/bin",
	"/sbin",
	"/var",
}

// ValidateWorkspacePath resolves a workspace root and checks it against the
// deny list and, when configured, the allow list. An empty allow list
// permits any path outside the system directories.
func ValidateWorkspacePath(path string, allowedRoots []string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrWorkspaceNotAllowed, path)
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	for _, forbidden := range forbiddenRoots {
		if within(abs, forbidden) {
			return "", fmt.Errorf("%w: %s", ErrWorkspaceNotAllowed, path)
		}
	}

	if len(allowedRoots) == 0 {
		return abs, nil
	}
	for _, allowed := range allowedRoots {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		if within(abs, filepath.Clean(allowedAbs)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrWorkspaceNotAllowed, path)
}

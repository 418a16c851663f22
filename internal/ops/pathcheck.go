package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/errors"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // capture logs and imports
	PathCheckWrite                      // exports
)

// ValidatePath validates a client-supplied .jsonl path.
//
// The file must sit directly in ~/.citelens/captures, ~/.citelens/exports or
// one of cfg.AllowedPaths; subdirectories are rejected so no intermediate
// component can be swapped for a symlink between validation and open.
// AllowUnsafePaths lifts the directory restriction only. The file itself may
// never be a symlink, which matches the O_NOFOLLOW open that follows.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		if err := checkParentDir(filepath.Dir(absPath), cfg); err != nil {
			return err
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(absPath) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// checkParentDir requires parent to be exactly one of the allowed directories
// and not itself a symlink.
func checkParentDir(parent string, cfg *config.Config) error {
	allowed, err := allowedDirs(cfg)
	if err != nil {
		return err
	}

	parent = filepath.Clean(parent)
	found := false
	for _, dir := range allowed {
		if parent == dir {
			found = true
			break
		}
	}
	if !found {
		return errors.NewInvalidRequest(
			fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v", allowed))
	}
	if isSymlink(parent) {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}
	return nil
}

// allowedDirs returns the default directories plus absolute AllowedPaths
// entries, cleaned. Entries that are symlinks are resolved to their target.
func allowedDirs(cfg *config.Config) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}

	dirs := []string{
		filepath.Join(home, ".citelens", "captures"),
		filepath.Join(home, ".citelens", "exports"),
	}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, p)
			}
		}
	}

	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = filepath.Clean(d)
		if isSymlink(d) {
			resolved, err := filepath.EvalSymlinks(d)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			d = resolved
		}
		out = append(out, d)
	}
	return out, nil
}

// openFileNoFollow opens an export temp file; the final component may not be a symlink.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return openNoFollow(path, flag, perm)
}

// openFileNoFollowRead opens a capture log or import file read-only.
func openFileNoFollowRead(path string) (*os.File, error) {
	return openNoFollow(path, os.O_RDONLY, 0)
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// DefaultExportsDir returns the default exports directory (~/.citelens/exports).
func DefaultExportsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(home, ".citelens", "exports"), nil
}

// containsTraversal reports whether any path component is "..".
// Forward slashes are checked on every platform.
func containsTraversal(path string) bool {
	seps := func(r rune) bool { return r == '/' || r == filepath.Separator }
	for _, part := range strings.FieldsFunc(path, seps) {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename makes s safe to embed in a file name.
func SanitizeForFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		s = "unnamed"
	}
	return s
}

//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/citelens/internal/errors"
)

// openNoFollow has no O_NOFOLLOW to lean on, so it refuses an existing
// symlink before opening. Creating symlinks needs elevated privileges on
// Windows, which narrows the window between the check and the open.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	if isSymlink(path) {
		return nil, errors.NewInvalidRequest("path must not be a symlink")
	}
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		if os.IsNotExist(err) && flag&os.O_CREATE == 0 {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return f, nil
}

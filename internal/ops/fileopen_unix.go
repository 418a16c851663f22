//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/citelens/internal/errors"
)

// openNoFollow opens path with O_NOFOLLOW|O_CLOEXEC. Only the final component
// is protected; ValidatePath keeps files directly inside an allowed directory,
// so there are no intermediate components to swap.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest("path must not be a symlink")
	case stderrors.Is(err, syscall.ENOENT) && flag&os.O_CREATE == 0:
		return nil, errors.NewFileNotFound(path)
	default:
		return nil, err
	}
}

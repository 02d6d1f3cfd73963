package fuseadapter

import (
	"errors"
	"syscall"

	"github.com/ori-fs/ori/internal/orierr"
)

// toErrno maps an orierr.Code to the POSIX errno the kernel expects.
// This is the only place in the mount adapter that looks at error
// codes: every other layer works with orierr values directly.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var e *orierr.Error
	if !errors.As(err, &e) {
		return syscall.EIO
	}
	switch e.Code {
	case orierr.NotFound:
		return syscall.ENOENT
	case orierr.Exists:
		return syscall.EEXIST
	case orierr.WrongType:
		return syscall.EINVAL
	case orierr.Malformed:
		return syscall.EINVAL
	case orierr.IntegrityError:
		return syscall.EIO
	case orierr.NotEmpty:
		return syscall.ENOTEMPTY
	case orierr.AccessDenied:
		return syscall.EACCES
	case orierr.InvalidArgument:
		return syscall.EINVAL
	case orierr.Io:
		return syscall.EIO
	case orierr.Corrupted:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

package ptyx

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Solaris has no stable syscall numbers; ioctl goes through libc the same
// way golang.org/x/sys/unix routes its own calls.

//go:cgo_import_dynamic libc_ioctl ioctl "libc.so"
//go:linkname procioctl libc_ioctl
var procioctl uintptr

//go:linkname sysvicall6 syscall.sysvicall6
func sysvicall6(trap, nargs, a1, a2, a3, a4, a5, a6 uintptr) (r1, r2 uintptr, err unix.Errno)

// STREAMS and pty ioctl requests from sys/stropts.h and sys/ptms.h.
const (
	strCmd = int('S') << 8
	ptmCmd = int('P') << 8

	iPUSH = strCmd | 0o2
	iSTR  = strCmd | 0o10
	iFIND = strCmd | 0o13

	isptm  = ptmCmd | 1
	unlkpt = ptmCmd | 2
)

// strioctl mirrors struct strioctl from sys/stropts.h.
type strioctl struct {
	Cmd    int32
	Timout int32
	Len    int32
	Dp     unsafe.Pointer
}

func ioctlRet(fd, req int, arg uintptr) (int, error) {
	r1, _, errno := sysvicall6(uintptr(unsafe.Pointer(&procioctl)), 3,
		uintptr(fd), uintptr(req), arg, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

// streamsIoctlStr issues a STREAMS ioctl whose argument is a module name.
func streamsIoctlStr(fd, req int, name string) (int, error) {
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return 0, err
	}
	r, err := ioctlRet(fd, req, uintptr(unsafe.Pointer(p)))
	if err != nil {
		return 0, os.NewSyscallError("ioctl", err)
	}
	return r, nil
}

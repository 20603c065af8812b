package ptyx

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ptyGetName fetches the slave path via TIOCPTYGNAME, which fills a
// 128-byte buffer (see sys/ttycom.h).
func ptyGetName(fd int) (string, error) {
	buf := make([]byte, 128)
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL,
		uintptr(fd), uintptr(unix.TIOCPTYGNAME), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return "", os.NewSyscallError("ioctl(TIOCPTYGNAME)", errno)
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}

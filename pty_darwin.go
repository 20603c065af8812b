package ptyx

import (
	"os"

	"golang.org/x/sys/unix"
)

const solarisSemantics = false

func openMaster(flags int) (int, error) {
	return unix.Open("/dev/ptmx", flags, 0)
}

func grant(fd int) error {
	if err := unix.IoctlSetInt(fd, unix.TIOCPTYGRANT, 0); err != nil {
		return os.NewSyscallError("ioctl(TIOCPTYGRANT)", err)
	}
	return nil
}

func unlock(fd int) error {
	if err := unix.IoctlSetInt(fd, unix.TIOCPTYUNLK, 0); err != nil {
		return os.NewSyscallError("ioctl(TIOCPTYUNLK)", err)
	}
	return nil
}

func slaveName(fd int) (string, error) {
	return ptyGetName(fd)
}

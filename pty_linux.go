package ptyx

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// solarisSemantics selects the STREAMS-specific slave handling: termios and
// size survive slave reopen on Linux, so nothing needs caching.
const solarisSemantics = false

func openMaster(flags int) (int, error) {
	return unix.Open("/dev/ptmx", flags, 0)
}

func grant(fd int) error {
	// devpts applies ownership and mode when the slave is opened; probing
	// the pty number surfaces the same failures grantpt(3) would.
	if _, err := unix.IoctlGetInt(fd, unix.TIOCGPTN); err != nil {
		return os.NewSyscallError("ioctl(TIOCGPTN)", err)
	}
	return nil
}

func unlock(fd int) error {
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		return os.NewSyscallError("ioctl(TIOCSPTLCK)", err)
	}
	return nil
}

func slaveName(fd int) (string, error) {
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		return "", os.NewSyscallError("ioctl(TIOCGPTN)", err)
	}
	return "/dev/pts/" + strconv.Itoa(n), nil
}

package ptyx

import (
	"os"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// On Solaris a pty is a STREAMS clone; termios and window size are lost
// once the last slave closes, so Pty caches and re-applies them.
const solarisSemantics = true

func openMaster(flags int) (int, error) {
	return unix.Open("/dev/ptmx", flags, 0)
}

// grant applies the ownership and mode grantpt(3) establishes on the slave
// device node.
func grant(fd int) error {
	name, err := slaveName(fd)
	if err != nil {
		return err
	}
	if err := unix.Chown(name, unix.Getuid(), unix.Getgid()); err != nil {
		return os.NewSyscallError("chown", err)
	}
	if err := unix.Chmod(name, 0o620); err != nil {
		return os.NewSyscallError("chmod", err)
	}
	return nil
}

func unlock(fd int) error {
	if _, err := ioctlRet(fd, unlkpt, 0); err != nil {
		return os.NewSyscallError("ioctl(UNLKPT)", err)
	}
	return nil
}

func slaveName(fd int) (string, error) {
	// Verify the fd really is a pty master before trusting its rdev.
	istr := strioctl{Cmd: isptm}
	if _, err := ioctlRet(fd, iSTR, uintptr(unsafe.Pointer(&istr))); err != nil {
		return "", os.NewSyscallError("ioctl(ISPTM)", err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return "", os.NewSyscallError("fstat", err)
	}
	return "/dev/pts/" + strconv.FormatUint(uint64(st.Rdev)&0x3ffff, 10), nil
}

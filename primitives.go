// Package ptyx opens pseudo-terminal devices and relays their master side
// to plain pipe descriptors the host can read and write as ordinary byte
// streams.
//
// The low-level primitives below map one-to-one onto the classic pty call
// sequence: allocate a master, grant, unlock, resolve the slave path, open
// the slave, and (on Solaris) push the STREAMS terminal modules. The Pty
// type in this package drives that ordering; the relay package bridges the
// resulting master to host-visible pipes.
package ptyx

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/srg/ptyx/internal/fdutil"
)

// OpenMaster allocates a new PTY master with the given open flags
// (O_RDWR, O_NOCTTY and O_NONBLOCK are meaningful) and configures it
// non-blocking and close-on-exec before returning the descriptor.
func OpenMaster(flags int) (int, error) {
	fd, err := openMaster(flags)
	if err != nil {
		return -1, fmt.Errorf("failed to open pty master (check permissions and available pty devices): %w",
			os.NewSyscallError("open", err))
	}
	if err := fdutil.SetNonblock(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := fdutil.SetCloexec(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Grant changes ownership and permissions of the slave device belonging to
// the master, like grantpt(3).
func Grant(masterFd int) error {
	return grant(masterFd)
}

// Unlock clears the slave lock on the master, like unlockpt(3).
func Unlock(masterFd int) error {
	return unlock(masterFd)
}

// SlaveName resolves the filesystem path of the slave device belonging to
// the master, like ptsname(3).
func SlaveName(masterFd int) (string, error) {
	return slaveName(masterFd)
}

// Winsize is a terminal window size in character cells.
type Winsize struct {
	Cols uint16
	Rows uint16
}

// GetSize reads the window size of the terminal behind fd.
func GetSize(fd int) (Winsize, error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return Winsize{}, fmt.Errorf("failed to get window size: %w", os.NewSyscallError("ioctl(TIOCGWINSZ)", err))
	}
	return Winsize{Cols: ws.Col, Rows: ws.Row}, nil
}

// SetSize sets the window size of the terminal behind fd and echoes the
// effective values back.
func SetSize(fd int, cols, rows uint16) (Winsize, error) {
	if cols < 1 || rows < 1 {
		return Winsize{}, ErrBadWinsize
	}
	ws := unix.Winsize{Col: cols, Row: rows}
	if err := unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, &ws); err != nil {
		return Winsize{}, fmt.Errorf("failed to set window size: %w", os.NewSyscallError("ioctl(TIOCSWINSZ)", err))
	}
	return GetSize(fd)
}

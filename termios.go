package ptyx

import (
	"os"

	"golang.org/x/sys/unix"
)

// DefaultTermios returns the line discipline settings a fresh interactive
// terminal session expects: canonical mode, echo, signal generation, CR/NL
// translation and 8-bit characters at 38400 baud. With utf8 the kernel's
// UTF-8 aware erase handling is enabled where the platform has it.
func DefaultTermios(utf8 bool) *unix.Termios {
	t := &unix.Termios{}
	t.Iflag = unix.ICRNL | unix.IXON | unix.IXANY | unix.IMAXBEL | unix.BRKINT
	t.Oflag = unix.OPOST | unix.ONLCR
	t.Cflag = unix.CREAD | unix.CS8 | unix.HUPCL
	t.Lflag = unix.ICANON | unix.ISIG | unix.IEXTEN |
		unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHOKE | unix.ECHOCTL
	t.Cc[unix.VEOF] = 4
	t.Cc[unix.VERASE] = 0x7f
	t.Cc[unix.VWERASE] = 23
	t.Cc[unix.VKILL] = 21
	t.Cc[unix.VREPRINT] = 18
	t.Cc[unix.VINTR] = 3
	t.Cc[unix.VQUIT] = 0x1c
	t.Cc[unix.VSUSP] = 26
	t.Cc[unix.VSTART] = 17
	t.Cc[unix.VSTOP] = 19
	t.Cc[unix.VLNEXT] = 22
	t.Cc[unix.VDISCARD] = 15
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	platformTermios(t, utf8)
	return t
}

// RawTermios returns a zeroed line discipline: no echo, no canonical
// processing, no output post-processing, one-byte read threshold. Useful
// when the pty should pass bytes through untouched.
func RawTermios() *unix.Termios {
	t := &unix.Termios{}
	t.Cflag = unix.CREAD | unix.CS8
	t.Cc[unix.VMIN] = 1
	return t
}

func getTermios(fd int) (*unix.Termios, error) {
	t, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, os.NewSyscallError("tcgetattr", err)
	}
	return t, nil
}

func setTermios(fd int, t *unix.Termios) error {
	if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, t); err != nil {
		return os.NewSyscallError("tcsetattr", err)
	}
	return nil
}

package ptyx

import "golang.org/x/sys/unix"

const (
	ioctlReadTermios  = unix.TCGETS
	ioctlWriteTermios = unix.TCSETS
)

func platformTermios(t *unix.Termios, utf8 bool) {
	if utf8 {
		t.Iflag |= unix.IUTF8
	}
	t.Cflag |= unix.B38400
	t.Ispeed = unix.B38400
	t.Ospeed = unix.B38400
}

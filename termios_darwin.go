package ptyx

import "golang.org/x/sys/unix"

const (
	ioctlReadTermios  = unix.TIOCGETA
	ioctlWriteTermios = unix.TIOCSETA
)

func platformTermios(t *unix.Termios, utf8 bool) {
	if utf8 {
		t.Iflag |= unix.IUTF8
	}
	t.Cc[unix.VDSUSP] = 25
	t.Cc[unix.VSTATUS] = 20
	t.Ispeed = unix.B38400
	t.Ospeed = unix.B38400
}

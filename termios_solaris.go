package ptyx

import "golang.org/x/sys/unix"

const (
	ioctlReadTermios  = unix.TCGETS
	ioctlWriteTermios = unix.TCSETS
)

func platformTermios(t *unix.Termios, utf8 bool) {
	// Speed lives in Cflag on Solaris; there is no IUTF8.
	t.Cflag |= unix.B38400
}

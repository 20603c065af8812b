//go:build !solaris

package main

import "golang.org/x/sys/unix"

// acquireControllingTerminal makes stdin the controlling terminal of the
// current process. Setsid already ran in the parent's fork path, so the
// process is a session leader without a terminal.
func acquireControllingTerminal() error {
	return unix.IoctlSetInt(0, unix.TIOCSCTTY, 0)
}

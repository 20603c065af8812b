// ptyx-helper is the first program a freshly spawned child runs. The
// parent has already placed the pty slave on stdin; the helper acquires it
// as the controlling terminal for the new session and execs the target
// command in place.
//
// Exit codes: 1 when no command was given, 255 when the
// controlling-terminal setup fails, otherwise the errno of a failed exec.
// On success control never returns.
package main

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

func main() {
	if len(os.Args) < 2 {
		os.Exit(1)
	}

	if err := acquireControllingTerminal(); err != nil {
		os.Exit(255)
	}

	path, err := exec.LookPath(os.Args[1])
	if err != nil {
		os.Exit(int(unix.ENOENT))
	}

	err = unix.Exec(path, os.Args[1:], os.Environ())
	// Only reached when exec failed.
	var errno unix.Errno
	if errors.As(err, &errno) {
		os.Exit(int(errno))
	}
	os.Exit(1)
}

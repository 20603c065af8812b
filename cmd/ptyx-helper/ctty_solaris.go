package main

import "github.com/srg/ptyx"

// Solaris has no TIOCSCTTY; a session leader acquires the STREAMS pty as
// its controlling terminal by opening it, which the parent already did.
// What may still be missing are the terminal modules on the stream.
func acquireControllingTerminal() error {
	return ptyx.LoadStreamModules(0)
}

//go:build !solaris

package ptyx

// LoadStreamModules is a no-op outside Solaris: Linux and the BSDs wire the
// line discipline into the pty directly.
func LoadStreamModules(slaveFd int) error {
	return nil
}

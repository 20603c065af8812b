package relay

import "github.com/cornelk/hashmap"

// registry tracks live relays by master descriptor. Attach inserts, the
// worker's completion path removes.
var registry = hashmap.New[int, *Relay]()

// Lookup returns the running relay attached to the given master fd.
func Lookup(masterFd int) (*Relay, bool) {
	return registry.Get(masterFd)
}

// Active returns a snapshot of all running relays.
func Active() []*Relay {
	var relays []*Relay
	registry.Range(func(_ int, r *Relay) bool {
		relays = append(relays, r)
		return true
	})
	return relays
}

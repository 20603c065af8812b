package ptyx

// streamModules are pushed onto a fresh slave to give the raw STREAMS
// device terminal semantics.
var streamModules = []string{"ptem", "ldterm", "ttcompat"}

// LoadStreamModules idempotently pushes ptem, ldterm and ttcompat onto the
// slave's STREAMS stack. When ldterm is already present the stack is
// considered initialized and nothing is pushed.
func LoadStreamModules(slaveFd int) error {
	found, err := streamsIoctlStr(slaveFd, iFIND, "ldterm")
	if err != nil {
		return err
	}
	if found != 0 {
		return nil
	}
	for _, mod := range streamModules {
		if _, err := streamsIoctlStr(slaveFd, iPUSH, mod); err != nil {
			return err
		}
	}
	return nil
}

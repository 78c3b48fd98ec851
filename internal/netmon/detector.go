package netmon

import "time"

// LoopbackName is excluded from candidacy regardless of OS flags.
const LoopbackName = "lo"

// State is the monitor's only long-lived data. It is owned by the goroutine
// running the monitor loop.
type State struct {
	Current    string
	Previous   string
	Changed    bool
	LastAction time.Time
}

type DetectionResult struct {
	Found   bool
	Changed bool
	Name    string
}

func isLoopback(entry InterfaceAddr) bool {
	return entry.Loopback || entry.Name == LoopbackName
}

// Candidate returns the first non-loopback IPv4 entry in enumeration order.
func Candidate(snapshot []InterfaceAddr) (string, bool) {
	for _, entry := range snapshot {
		if entry.Family != FamilyIPv4 || isLoopback(entry) {
			continue
		}
		return entry.Name, true
	}
	return "", false
}

// Detect compares the snapshot's candidate with state.Current and records
// a change in state. Without a candidate the state is retained.
func Detect(snapshot []InterfaceAddr, state *State) DetectionResult {
	state.Changed = false

	name, ok := Candidate(snapshot)
	if !ok {
		return DetectionResult{}
	}
	if name == state.Current {
		return DetectionResult{Found: true, Name: name}
	}

	state.Previous = state.Current
	state.Current = name
	state.Changed = true
	return DetectionResult{Found: true, Changed: true, Name: name}
}

// seedName picks the initial tracked interface: the first non-loopback
// IPv4 entry, else the first non-loopback entry of any family, else the
// first entry.
func seedName(snapshot []InterfaceAddr) string {
	if name, ok := Candidate(snapshot); ok {
		return name
	}
	for _, entry := range snapshot {
		if !isLoopback(entry) {
			return entry.Name
		}
	}
	if len(snapshot) > 0 {
		return snapshot[0].Name
	}
	return ""
}

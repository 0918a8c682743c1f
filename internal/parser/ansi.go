package parser

// StripANSI removes CSI, OSC and two-byte escape sequences from s.
//
// Removing one sequence can join the bytes around it into another (a stray
// ESC followed by a complete CSI, for example), so the rules are reapplied
// until nothing changes. Every pass that changes s makes it shorter.
func StripANSI(s string) string {
	for {
		next := applyRules(ansiRules, s)
		if next == s {
			return s
		}
		s = next
	}
}

package parser

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// CleanCommand turns the raw keystrokes of one command into the text the
// user submitted: escapes stripped, backspace and delete applied, other
// control characters except tab dropped, surrounding space trimmed.
func CleanCommand(raw string) string {
	s := StripANSI(raw)
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\b' || r == 0x7f:
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case r < 0x20 && r != '\t':
		default:
			out = append(out, r)
		}
	}
	return strings.TrimSpace(string(out))
}

// CleanOutput turns the raw pty output that followed a submission into the
// command's output. The first line is dropped when empty (the echoed
// newline) and the last line is always dropped (the next shell prompt), so
// output consisting of a single line comes back empty.
func CleanOutput(raw string) string {
	s := lineEndings.Replace(StripANSI(raw))
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

package output

import "fmt"

// TerminalFormatAsDim renders secondary hints, e.g. what happened to the medium after a failed backup.
func TerminalFormatAsDim(text string) string {
	return fmt.Sprintf("\x1B[2m%s\x1B[0m", text)
}

func TerminalFormatAsError(text string) string {
	return fmt.Sprintf("\x1B[31m%s\x1B[0m", text)
}

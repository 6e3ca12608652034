package workspace

import (
	"fmt"
	"strings"
)

const draftName = "untitled.py"

// ValidName reports whether name can be a workspace file. Files live in a
// single flat directory.
func ValidName(name string) bool {
	return name != "" &&
		name != "." &&
		name != ".." &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, "/\\\x00")
}

// suitableName returns name if it is free, otherwise the first free
// candidate produced by next for counters 0, 1, 2, ...
func suitableName(name string, taken func(string) bool, next func(counter int) string) string {
	candidate := name
	for counter := 0; taken(candidate); counter++ {
		candidate = next(counter)
	}
	return candidate
}

func draftCandidate(counter int) string {
	return fmt.Sprintf("untitled-%d.py", counter+1)
}

func copyCandidate(name string) func(int) string {
	return func(counter int) string {
		if counter == 0 {
			return "Copy of " + name
		}
		return fmt.Sprintf("Copy %d of %s", counter, name)
	}
}

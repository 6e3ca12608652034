package engine

// Defaults for Shorten.
const (
	DefaultReprLimit     = 1000
	DefaultReprSeparator = "\n<long output truncated>\n"
)

// Shorten bounds s to roughly limit runes, keeping the head and tail and
// joining them with sep. A non-positive limit disables shortening.
func Shorten(s string, limit int, sep string) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	head := limit / 2
	tail := limit - head
	return string(r[:head]) + sep + string(r[len(r)-tail:])
}

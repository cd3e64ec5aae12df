package control

import "unicode/utf8"

var namedKeys = map[string]bool{
	"esc": true, "tab": true, "backspace": true, "enter": true, "space": true,
	"left": true, "right": true, "up": true, "down": true,
	"shift": true, "ctrl": true, "alt": true, "cmd": true, "delete": true,
}

// IsValidKeyName reports whether name is a recognized symbolic key name: a
// single printable rune, one of the named keys, or f1..f24.
func IsValidKeyName(name string) bool {
	if name == "" {
		return false
	}
	if namedKeys[name] {
		return true
	}
	if isFunctionKey(name) {
		return true
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return r >= 0x20 && r != 0x7f
	}
	return false
}

func isFunctionKey(name string) bool {
	if len(name) < 2 || name[0] != 'f' {
		return false
	}
	n := 0
	for _, c := range name[1:] {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n >= 1 && n <= 24
}

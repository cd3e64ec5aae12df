package control

import "path/filepath"

// SanitizeFileName reduces name to its final path element, so directory
// components, an absolute prefix and any ".." elements before it are
// dropped ("/etc/passwd" becomes "passwd"). An empty result, ".", ".." or a
// bare separator falls back to the default name "received_file"
// (spec §4.5).
func SanitizeFileName(name string) string {
	base := filepath.Base(name)
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "received_file"
	}
	return base
}

package tactile

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ResolveBind makes the host side of a host:container[:mode] bind absolute.
// Named volumes (no path separator) are left alone.
func ResolveBind(bind string) string {
	host, rest, ok := strings.Cut(bind, ":")
	if !ok {
		return bind
	}
	host = ExpandHome(host)
	if !filepath.IsAbs(host) && (strings.ContainsRune(host, '/') || strings.HasPrefix(host, ".")) {
		if abs, err := filepath.Abs(host); err == nil {
			host = abs
		}
	}
	return host + ":" + rest
}

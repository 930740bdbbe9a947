package file

import (
	"os"
	"path/filepath"
	"strings"
)

// Companions returns the files next to path that share its base name and carry
// one of exts, in the order of exts. Only existing regular files are listed.
func Companions(path string, exts []string) []string {
	var found []string
	for _, ext := range exts {
		candidate := WithExt(path, ext)
		if candidate == path {
			continue
		}
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		found = append(found, candidate)
	}
	return found
}

// WithExt swaps the extension of path for ext. A leading dot on ext is
// optional; dotfiles such as ".env" count as having no extension.
func WithExt(path, ext string) string {
	if path == "" {
		return path
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	base := filepath.Base(path)
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	return filepath.Join(filepath.Dir(path), base+ext)
}

// HasExt reports whether path ends with one of exts, ignoring case.
func HasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

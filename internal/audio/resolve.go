package audio

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveFile finds a referenced audio file on disk for jobs that name a
// path instead of carrying bytes.
// Priority: 1) ref relative to the watch dir  2) ref relative to the
// managed audio dir  3) ref as an absolute path.
// A relative ref must stay inside its base directory; an absolute ref is
// taken as an explicit operator choice.
func ResolveFile(watchDir, audioDir, ref string) string {
	if ref == "" {
		return ""
	}

	if !filepath.IsAbs(ref) {
		for _, dir := range []string{watchDir, audioDir} {
			if dir == "" {
				continue
			}
			full := filepath.Join(dir, ref)
			if !contained(dir, full) {
				continue
			}
			if _, err := os.Stat(full); err == nil {
				return full
			}
		}
		return ""
	}

	if _, err := os.Stat(ref); err == nil {
		return ref
	}
	return ""
}

// contained reports whether path stays inside dir after cleaning.
func contained(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

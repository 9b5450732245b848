package agent

import (
	"path"
	"strings"
)

// SanitizeTestFiles keeps generated test files whose paths stay inside the build tree.
// Leading slashes are stripped. Empty paths and paths escaping the tree are dropped.
func SanitizeTestFiles(files map[string]string) (map[string]string, []string) {
	kept := make(map[string]string, len(files))
	var dropped []string
	for name, content := range files {
		cleaned := strings.TrimLeft(strings.TrimSpace(name), "/")
		if cleaned == "" {
			dropped = append(dropped, name)
			continue
		}
		cleaned = path.Clean(cleaned)
		if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "\\") {
			dropped = append(dropped, name)
			continue
		}
		kept[cleaned] = content
	}
	return kept, dropped
}

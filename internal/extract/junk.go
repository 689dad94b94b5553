package extract

import (
	"os"
	"path/filepath"
	"strings"
)

// IsJunkEntry reports whether an archive entry is OS metadata that should
// never reach disk (macOS resource forks and Finder droppings).
func IsJunkEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	if name == ".DS_Store" || strings.Contains(name, "/.DS_Store") {
		return true
	}
	base := name
	if i := strings.LastIndex(strings.TrimSuffix(name, "/"), "/"); i >= 0 {
		base = name[i+1:]
	}
	return strings.HasPrefix(base, "._")
}

// CleanJunkFiles removes junk files and __MACOSX directories that the
// extraction itself may have synthesized on disk. Removal failures are
// ignored; a leftover junk file never fails an intake.
func CleanJunkFiles(root string) {
	var junkDirs []string

	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := info.Name()
		if info.IsDir() {
			if name == "__MACOSX" {
				junkDirs = append(junkDirs, path)
				return filepath.SkipDir
			}
			return nil
		}
		if name == ".DS_Store" || strings.HasPrefix(name, "._") {
			_ = os.Remove(path)
		}
		return nil
	})

	for _, dir := range junkDirs {
		_ = os.RemoveAll(dir)
	}
}

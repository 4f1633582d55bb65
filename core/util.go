package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanCode trims and upper-cases codes such as subject codes, branches and sections.
func CleanCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Getwd finds the project root, i.e. the closest parent directory holding a go.mod file.
// go test runs from the package directory, so the working directory alone is not enough.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			// not run from the source tree (e.g. a deployed binary)
			return wd
		}
		currDir = newDir
	}
}

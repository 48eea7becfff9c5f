package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)
	return fullPath, parentDir, nil
}

// ReadSource loads an l25 source file. Sources are plain ASCII; any other
// byte is rejected with its line and column.
func ReadSource(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line, col := 1, 0
	for _, c := range raw {
		col++
		if c == '\n' {
			line, col = line+1, 0
			continue
		}
		if c > 0x7f {
			return "", fmt.Errorf("%s:%d:%d: non-ASCII byte 0x%02x", path, line, col, c)
		}
	}
	return string(raw), nil
}

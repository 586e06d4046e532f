package appdir

import (
	"os"
	"path/filepath"
	"sync"
)

const dirName = ".sbrw-mp"

var (
	once     sync.Once
	appDir   string
	fallback = filepath.Join(os.TempDir(), dirName)
)

// AppDir returns the per-user state directory, creating it on first use.
// It falls back to a directory under os.TempDir when no home is available.
func AppDir() string {
	once.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			appDir = fallback
		} else {
			appDir = filepath.Join(home, dirName)
		}
		if err := os.MkdirAll(appDir, 0o755); err != nil {
			appDir = fallback
			_ = os.MkdirAll(appDir, 0o755)
		}
	})
	return appDir
}

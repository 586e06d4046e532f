package log

import (
	"fmt"
	"path/filepath"

	"sbrw-mp-go/pkg/appdir"
)

// DefaultDBPath is where an application's log database lives.
func DefaultDBPath(app string) string {
	return filepath.Join(appdir.AppDir(), fmt.Sprintf("%s.db", app))
}

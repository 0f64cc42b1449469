package migrate

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultDir is where the wallet schema lives in the repository. Binaries
// resolve it to the copy embedded at build time.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source resolves dir to a migration filesystem. An empty dir or DefaultDir
// uses the embedded copy so deployed workers need no files on disk.
func Source(dir string) fs.FS {
	if dir == "" || filepath.Clean(dir) == DefaultDir {
		return Embedded()
	}
	return os.DirFS(dir)
}

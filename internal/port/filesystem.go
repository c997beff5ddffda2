package port

import (
	"io"
)

// FileSystem defines the interface for local filesystem operations
type FileSystem interface {
	// DirExists returns true if path is an existing directory
	DirExists(path string) bool

	// WriteFile streams reader into path through a temp file and renames it
	// into place, creating parent directories as needed
	// Returns: bytes written, error
	WriteFile(path string, reader io.Reader) (int64, error)

	// CleanTempFiles removes leftover partial downloads under root
	// Returns the number of files deleted
	CleanTempFiles(root string) (int, error)
}

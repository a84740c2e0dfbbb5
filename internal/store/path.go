// Package store provides filesystem conventions for the local queue database.
package store

import (
	"os"
	"path/filepath"
)

// DefaultDBPath returns the default location of the queue database:
// ~/.pulse/queue.db, falling back to ./data/queue.db when the home
// directory cannot be resolved.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("data", "queue.db")
	}
	return filepath.Join(home, ".pulse", "queue.db")
}

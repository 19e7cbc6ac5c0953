package storage

import (
	"os"
	"time"
)

// DateKeyFormat is the layout of ledger date keys, a local calendar date.
const DateKeyFormat = "2006-01-02"

// DateKey formats t in the local calendar as a ledger date key.
func DateKey(t time.Time) string {
	return t.Format(DateKeyFormat)
}

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

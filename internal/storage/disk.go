package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the database and keyword index.
type Usage struct {
	DatabaseBytes int64 `json:"database_bytes"`
	IndexBytes    int64 `json:"index_bytes"`
}

// Total returns the combined size.
func (u Usage) Total() int64 { return u.DatabaseBytes + u.IndexBytes }

// MeasureUsage sizes the database file (with its WAL and shared-memory siblings)
// and the index directory. Missing paths count as zero.
func MeasureUsage(dbPath, indexPath string) (Usage, error) {
	var u Usage
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		n, err := DiskUsageBytes(p)
		if err != nil {
			return Usage{}, err
		}
		u.DatabaseBytes += n
	}
	n, err := DiskUsageBytes(indexPath)
	if err != nil {
		return Usage{}, err
	}
	u.IndexBytes = n
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths are skipped; other errors are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}

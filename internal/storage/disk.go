package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage is the on-disk footprint of the catalog, per component.
type DiskUsage struct {
	Database     int64 `json:"database"`
	ArtworkIndex int64 `json:"artwork_index"`
	EssayIndex   int64 `json:"essay_index"`
	Total        int64 `json:"total"`
}

// CatalogDiskUsage measures the database (with its WAL sidecar files) and both lexical
// indexes. An in-memory database counts as zero.
func CatalogDiskUsage(dbPath, artworkIndexPath, essayIndexPath string) (*DiskUsage, error) {
	var u DiskUsage
	var err error
	if dbPath != ":memory:" {
		if u.Database, err = DiskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm"); err != nil {
			return nil, err
		}
	}
	if u.ArtworkIndex, err = DiskUsageBytes(artworkIndexPath); err != nil {
		return nil, err
	}
	if u.EssayIndex, err = DiskUsageBytes(essayIndexPath); err != nil {
		return nil, err
	}
	u.Total = u.Database + u.ArtworkIndex + u.EssayIndex
	return &u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths are skipped; errors during a walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		n, err := dirSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
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
	return total, err
}

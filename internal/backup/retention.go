package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	filePrefix     = "hagerstrand-backup-"
	fileExt        = ".backup"
	fileTimeLayout = "20060102-150405"
)

// Info describes one backup file in a directory.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	RunCount  int       `json:"run_count"`
}

// Policy decides which backups survive rotation. A backup is kept when it is
// among the KeepLast newest or younger than MaxAge. Zero fields disable
// their rule; a zero Policy keeps everything.
type Policy struct {
	KeepLast int
	MaxAge   time.Duration
}

// Apply returns the backups to keep. backups must be sorted newest-first.
func (p Policy) Apply(backups []Info, now time.Time) []Info {
	if p.KeepLast <= 0 && p.MaxAge <= 0 {
		return backups
	}
	cutoff := now.Add(-p.MaxAge)
	var keep []Info
	for i, b := range backups {
		if (p.KeepLast > 0 && i < p.KeepLast) || (p.MaxAge > 0 && b.CreatedAt.After(cutoff)) {
			keep = append(keep, b)
		}
	}
	return keep
}

// List scans dir for backup files and returns them sorted newest-first.
// The creation time comes from the file header when readable.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []Info
	for _, e := range entries {
		if e.IsDir() || !isBackupFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}

		b := Info{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(b.Path); err == nil {
			b.CreatedAt = h.CreatedAt
			b.RunCount = h.RunCount
		}
		backups = append(backups, b)
	}

	// The timestamp is embedded in the name.
	sort.Slice(backups, func(i, j int) bool {
		return filepath.Base(backups[i].Path) > filepath.Base(backups[j].Path)
	})
	return backups, nil
}

// Rotate deletes the backups in dir that the policy does not keep and
// returns their paths.
func Rotate(dir string, policy Policy, now time.Time) (deleted []string, err error) {
	backups, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, b := range policy.Apply(backups, now) {
		keep[b.Path] = true
	}

	for _, b := range backups {
		if keep[b.Path] {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(b.Path), err)
		}
		deleted = append(deleted, b.Path)
	}
	return deleted, nil
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt)
}

// ParseDuration parses durations like "30d", "2w" or any time.ParseDuration
// string. Empty means no age limit.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[s[len(s)-1]]
	n, err := strconv.Atoi(s[:len(s)-1])
	if unit == 0 || err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q (examples: 72h, 30d, 2w)", s)
	}
	return time.Duration(n) * unit, nil
}

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const dayLayout = "2006-01-02"

// DailyFile is an io.Writer that appends to dir/name and rotates it at local
// midnight to dir/name.YYYY-MM-DD, keeping at most Retention rotated files.
// A retention of zero keeps every file.
type DailyFile struct {
	path      string
	retention int
	clock     clockwork.Clock

	mu  sync.Mutex
	f   *os.File
	day string
}

// OpenDailyFile opens (or creates) the log file. A file left over from a
// previous day is rotated immediately.
func OpenDailyFile(dir, name string, retention int, clock clockwork.Clock) (*DailyFile, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	d := &DailyFile{
		path:      filepath.Join(dir, name),
		retention: retention,
		clock:     clock,
	}

	today := clock.Now().Format(dayLayout)
	if info, err := os.Stat(d.path); err == nil {
		if fileDay := info.ModTime().Format(dayLayout); fileDay != today {
			d.day = fileDay
			if err := d.rotateLocked(today); err != nil {
				return nil, err
			}
			return d, nil
		}
	}
	if err := d.openLocked(today); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return 0, os.ErrClosed
	}
	if today := d.clock.Now().Format(dayLayout); today != d.day {
		if err := d.rotateLocked(today); err != nil {
			return 0, err
		}
	}
	return d.f.Write(p)
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *DailyFile) openLocked(day string) error {
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.f = f
	d.day = day
	return nil
}

func (d *DailyFile) rotateLocked(today string) error {
	if d.f != nil {
		d.f.Close()
		d.f = nil
	}
	if _, err := os.Stat(d.path); err == nil {
		if err := os.Rename(d.path, d.path+"."+d.day); err != nil {
			return fmt.Errorf("rotate log file: %w", err)
		}
	}
	if err := d.openLocked(today); err != nil {
		return err
	}
	d.pruneLocked()
	return nil
}

// pruneLocked removes the oldest rotated files beyond the retention count.
func (d *DailyFile) pruneLocked() {
	if d.retention <= 0 {
		return
	}
	matches, err := filepath.Glob(d.path + ".*")
	if err != nil {
		return
	}
	var rotated []string
	for _, m := range matches {
		suffix := strings.TrimPrefix(m, d.path+".")
		if _, err := time.Parse(dayLayout, suffix); err == nil {
			rotated = append(rotated, m)
		}
	}
	if len(rotated) <= d.retention {
		return
	}
	// Date suffixes sort chronologically.
	sort.Strings(rotated)
	for _, old := range rotated[:len(rotated)-d.retention] {
		os.Remove(old)
	}
}

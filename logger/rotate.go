package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// ErrClosed is returned by writes to a closed RotatingFile.
var ErrClosed = errors.New("log file is closed")

// RotatingFile is an io.WriteCloser appending to {service}_{date}.log in a
// directory. The file is swapped on the first write of a new day. Safe for
// concurrent use.
type RotatingFile struct {
	service string
	dir     string
	now     func() time.Time

	mu     sync.Mutex
	file   *os.File
	date   string
	closed bool
}

// NewRotatingFile opens today's log file in dir. The directory must exist.
//
// Parameters:
//   - service: Service name used in file names
//   - dir: Directory for log files
//
// Returns:
//   - The RotatingFile, or an error if the file could not be opened
func NewRotatingFile(service string, dir string) (*RotatingFile, error) {
	return newRotatingFile(service, dir, time.Now)
}

func newRotatingFile(service string, dir string, now func() time.Time) (*RotatingFile, error) {
	w := &RotatingFile{service: service, dir: dir, now: now}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openLocked(now().Format(dateLayout)); err != nil {
		return nil, err
	}

	return w, nil
}

// openLocked switches to the file for date; caller must hold w.mu.
func (w *RotatingFile) openLocked(date string) error {
	name := filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", name, err)
	}

	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = file
	w.date = date
	return nil
}

// Write implements io.Writer.
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}

	if date := w.now().Format(dateLayout); date != w.date {
		if err := w.openLocked(date); err != nil {
			return 0, fmt.Errorf("rotation failed: %w", err)
		}
	}

	return w.file.Write(p)
}

// Path returns the file currently written to.
func (w *RotatingFile) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, w.date))
}

// Close closes the current file. Subsequent writes return ErrClosed.
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	return w.file.Close()
}

// Package logfile provides a size-bounded, numbered-backup rotating file
// that is safe to share between goroutines and between processes that append
// to the same path.
package logfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFile is an io.WriteCloser that keeps the active file under maxBytes
// and retains at most backupCount numbered backups (path.1 is the newest).
type RotatingFile struct {
	mu          sync.Mutex
	path        string
	maxBytes    int64
	backupCount int
	file        *os.File
}

// Open opens (or creates) path for appending.
func Open(path string, maxBytes int64, backupCount int) (*RotatingFile, error) {
	if path == "" {
		return nil, errors.New("log file path must be specified")
	}
	if backupCount < 0 {
		backupCount = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rf := &RotatingFile{path: path, maxBytes: maxBytes, backupCount: backupCount}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Path returns the active file path.
func (r *RotatingFile) Path() string { return r.path }

// BackupPath returns the path of the n-th backup (1 is the most recent).
func (r *RotatingFile) BackupPath(n int) string {
	return fmt.Sprintf("%s.%d", r.path, n)
}

func (r *RotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r.file = f
	return nil
}

// Write appends p as a single write call, rotating first when p would push
// the active file past maxBytes.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, fs.ErrClosed
	}
	if err := r.reopenIfMoved(); err != nil {
		return 0, err
	}

	size, err := r.size()
	if err != nil {
		return 0, err
	}
	if r.maxBytes > 0 && size > 0 && size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to rotate log file: %v\n", err)
			if r.file == nil {
				return 0, err
			}
		}
	}
	return r.file.Write(p)
}

// reopenIfMoved follows the path after another process rotated it.
func (r *RotatingFile) reopenIfMoved() error {
	onDisk, err := os.Stat(r.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	current, ferr := r.file.Stat()
	if ferr != nil {
		return ferr
	}
	if err == nil && os.SameFile(onDisk, current) {
		return nil
	}
	_ = r.file.Close()
	return r.open()
}

func (r *RotatingFile) size() (int64, error) {
	info, err := r.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	if r.backupCount > 0 {
		for i := r.backupCount - 1; i > 0; i-- {
			src := r.BackupPath(i)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			dst := r.BackupPath(i + 1)
			_ = os.Remove(dst)
			if err := os.Rename(src, dst); err != nil {
				return r.reopenAfter(err)
			}
		}
		dst := r.BackupPath(1)
		_ = os.Remove(dst)
		if err := os.Rename(r.path, dst); err != nil {
			return r.reopenAfter(err)
		}
		return r.open()
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return r.reopenAfter(err)
	}
	r.file = f
	return nil
}

// reopenAfter keeps the writer usable when a rename fails mid-rotation.
func (r *RotatingFile) reopenAfter(cause error) error {
	if err := r.open(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Close closes the active file. Further writes return fs.ErrClosed.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

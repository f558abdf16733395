package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PidFile guards against a second daemon racing the same cache files. It
// lives alongside status.json and cmd.txt in the cache directory.
type PidFile struct {
	path string
	pid  int
}

// AcquirePid claims the pid file for app under the tablewatch cache dir. A
// stale file from a dead process is replaced; a live owner is an error.
func AcquirePid(app string) (*PidFile, error) {
	return acquirePidAt(filepath.Join(cacheDir(), app+".pid"))
}

func acquirePidAt(path string) (*PidFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("pid dir: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		if owner, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
			if processAlive(owner) {
				return nil, fmt.Errorf("another tablewatch instance is already running (pid %d)", owner)
			}
			if rerr := os.Remove(path); rerr != nil {
				return nil, fmt.Errorf("stale pid file: %w", rerr)
			}
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("pid file: %w", err)
	}
	return &PidFile{path: path, pid: pid}, nil
}

// Release removes the pid file, but only while it still names our pid. A file
// rewritten by a newer instance is left alone.
func (p *PidFile) Release() error {
	if p == nil {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil
	}
	if owner, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr != nil || owner != p.pid {
		return nil
	}
	return os.Remove(p.path)
}

// Path returns the pid file location on disk.
func (p *PidFile) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// processAlive reports whether pid is running, using signal 0. EPERM means
// the process exists but belongs to someone else.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

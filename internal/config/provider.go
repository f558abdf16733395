package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Provider hands out the active configuration and supports atomic hot-reload.
// Readers always see a complete configuration object; a reload swaps the
// pointer under the lock, never mutates in place.
type Provider struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewProvider wraps an initial configuration.
func NewProvider(cfg *Config) *Provider {
	return &Provider{cfg: cfg}
}

// Get returns the active configuration. The returned object must be treated
// as read-only.
func (p *Provider) Get() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Swap atomically replaces the active configuration.
func (p *Provider) Swap(cfg *Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// Reload loads path and swaps it in. On any load or validation error the
// previous configuration remains active and the error is returned.
func (p *Provider) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	p.Swap(cfg)
	return nil
}

// Watch monitors path with fsnotify and reloads on writes until ctx is
// cancelled. onReload is invoked after each attempt with the reload error
// (nil on success); a failed reload keeps the previous configuration.
func (p *Provider) Watch(ctx context.Context, path string, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the parent directory: editors and atomic writers replace the
	// file, which would otherwise drop a direct watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				// Small delay so the write is complete before we read.
				time.Sleep(50 * time.Millisecond)
				err := p.Reload(path)
				if onReload != nil {
					onReload(err)
				}
			case <-watcher.Errors:
				// Watcher errors are non-fatal; the next cycle still reads
				// the active configuration.
			}
		}
	}()
	return nil
}

package secrets

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider reads secrets from a directory holding one file per secret,
// the layout used by mounted Kubernetes and Docker secrets. Files must be
// readable by the owner only (0600 or 0400). Values are trimmed and
// cached until the directory changes.
type FileProvider struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewFileProvider creates a provider over dir. With watch set, changes in
// dir invalidate the cached values.
func NewFileProvider(dir string, watch bool, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets directory %s is not a directory", dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}

	p := &FileProvider{
		dir:    abs,
		logger: logger.With("component", "secrets", "provider", "file"),
		cache:  make(map[string]string),
		done:   make(chan struct{}),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets watcher: %w", err)
		}
		if err := w.Add(abs); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
		}
		p.watcher = w
		go p.watchLoop()
	}

	p.logger.Debug("secrets directory opened", "path", abs, "watch", watch)
	return p, nil
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Get reads the file named name.
func (p *FileProvider) Get(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	value, ok := p.cache[name]
	p.mu.RUnlock()
	if ok {
		return value, nil
	}

	path, err := p.path(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: no file %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("secret file %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret file %s is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm&^fs.FileMode(0o600) != 0 {
		return "", fmt.Errorf("secret file %s has insecure permissions %#o (want 0600 or 0400)", name, perm)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to dir
	if err != nil {
		return "", fmt.Errorf("secret file %s: %w", name, err)
	}
	value = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.cache[name] = value
	p.mu.Unlock()

	return value, nil
}

// path confines name to the provider directory.
func (p *FileProvider) path(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	return filepath.Join(p.dir, name), nil
}

// Refresh drops every cached value.
func (p *FileProvider) Refresh() {
	p.mu.Lock()
	p.cache = make(map[string]string)
	p.mu.Unlock()
}

// Close stops watching the directory.
func (p *FileProvider) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		if p.watcher != nil {
			err = p.watcher.Close()
		}
	})
	return err
}

func (p *FileProvider) watchLoop() {
	for {
		select {
		case <-p.done:
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.logger.Debug("secrets directory changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			p.Refresh()

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secrets watcher error", "error", err)
		}
	}
}

package order

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads and optionally hot-reloads flow scripts from YAML files.
// When the directory holds no scripts the built-in default is available
// under its own name.
type Loader struct {
	dir string

	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewLoader creates a loader for the given directory.
func NewLoader(dir string) *Loader {
	def := DefaultScript()
	return &Loader{
		dir:      dir,
		machines: map[string]*Machine{def.Name: NewMachine(def)},
	}
}

// LoadAll loads every .yaml and .yml file from the configured directory.
// The default script stays registered unless a file overrides its name.
func (l *Loader) LoadAll() (map[string]*Machine, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read script dir %q: %w", l.dir, err)
	}

	def := DefaultScript()
	result := map[string]*Machine{def.Name: NewMachine(def)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		machine, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		result[machine.Script().Name] = machine
	}

	l.mu.Lock()
	l.machines = result
	l.mu.Unlock()

	return result, nil
}

// Get returns a loaded machine by script name.
func (l *Loader) Get(name string) (*Machine, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.machines[name]
	return m, ok
}

// All returns all loaded machines.
func (l *Loader) All() map[string]*Machine {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]*Machine, len(l.machines))
	for k, v := range l.machines {
		result[k] = v
	}
	return result
}

func (l *Loader) loadFile(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Files only need to override what they change; everything else keeps
	// the default wording.
	script := DefaultScript()
	if err := yaml.Unmarshal(data, script); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := script.Validate(); err != nil {
		return nil, err
	}

	return NewMachine(script), nil
}

// reload re-runs LoadAll after a file event. A bad script must not kill
// the watcher or drop the previously loaded set, so failures are logged
// and the old machines stay in place.
func (l *Loader) reload(changed string) {
	if _, err := l.LoadAll(); err != nil {
		slog.Error("script reload failed, keeping previous scripts",
			slog.String("file", changed), slog.String("error", err.Error()))
	}
}

// WatchAndReload watches the script directory for changes and reloads.
// This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				ext := filepath.Ext(event.Name)
				if ext == ".yaml" || ext == ".yml" {
					l.reload(event.Name)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

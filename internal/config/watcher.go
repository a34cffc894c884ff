package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/shortcut-sage/internal/rules"
)

// DefaultReloadInterval is how often the watcher polls file mtimes.
const DefaultReloadInterval = 2 * time.Second

// Handlers receive reloaded configuration. Nil handlers are skipped.
type Handlers struct {
	Rules     func(*rules.RuleSet)
	Shortcuts func([]rules.Shortcut)
	// Failed is called when a changed file does not validate. The
	// previously installed configuration stays active.
	Failed func(file string, err error)
}

// Watcher polls the config directory and reloads whichever file changed.
type Watcher struct {
	dir      string
	interval time.Duration
	handlers Handlers
	logger   *slog.Logger
	lastMod  map[string]time.Time
}

// NewWatcher creates a watcher for dir. An interval <= 0 uses
// DefaultReloadInterval.
func NewWatcher(dir string, interval time.Duration, handlers Handlers, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		dir:      dir,
		interval: interval,
		handlers: handlers,
		logger:   logger,
		lastMod:  make(map[string]time.Time),
	}
	// Files loaded before Watch starts are not reloaded on the first tick.
	for _, name := range []string{RulesFile, ShortcutsFile} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			w.lastMod[name] = info.ModTime()
		}
	}
	return w
}

// Watch polls until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll checks both files once and reloads the ones whose mtime advanced.
func (w *Watcher) Poll() {
	for _, name := range []string{RulesFile, ShortcutsFile} {
		path := filepath.Join(w.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn("config stat failed", "path", path, "error", err)
			continue
		}
		if !info.ModTime().After(w.lastMod[name]) {
			continue
		}
		w.lastMod[name] = info.ModTime()
		w.reload(name, path)
	}
}

func (w *Watcher) reload(name, path string) {
	switch name {
	case RulesFile:
		set, err := LoadRules(path)
		if err != nil {
			w.fail(path, err)
			return
		}
		if w.handlers.Rules != nil {
			w.handlers.Rules(set)
		}
		w.logger.Info("rules reloaded", "path", path, "count", set.Len())
	case ShortcutsFile:
		shortcuts, err := LoadShortcuts(path)
		if err != nil {
			w.fail(path, err)
			return
		}
		if w.handlers.Shortcuts != nil {
			w.handlers.Shortcuts(shortcuts)
		}
		w.logger.Info("shortcuts reloaded", "path", path, "count", len(shortcuts))
	}
}

func (w *Watcher) fail(path string, err error) {
	w.logger.Error("config reload failed", "path", path, "error", err)
	if w.handlers.Failed != nil {
		w.handlers.Failed(path, err)
	}
}

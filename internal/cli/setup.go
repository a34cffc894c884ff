package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/shortcut-sage/internal/config"
	"github.com/roach88/shortcut-sage/internal/pipeline"
	"github.com/roach88/shortcut-sage/internal/shortcut"
)

// defaultConfigDir returns ~/.config/shortcut-sage, honoring
// XDG_CONFIG_HOME.
func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "shortcut-sage")
	}
	return "."
}

// defaultDatabasePath returns the telemetry database next to the config.
func defaultDatabasePath() string {
	return filepath.Join(defaultConfigDir(), "telemetry.db")
}

// buildPipeline loads dir and returns a pipeline with its rules and
// shortcuts installed.
func buildPipeline(dir string, window time.Duration, topN int, logger *slog.Logger, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	opts = append([]pipeline.Option{
		pipeline.WithTopN(topN),
		pipeline.WithLogger(logger),
	}, opts...)
	p, err := pipeline.New(window, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid window %s: %w", window, err)
	}
	p.SetRules(cfg.Rules)
	p.SetShortcuts(shortcut.NewTable(cfg.Shortcuts))
	return p, nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"triage/internal/minify"
	"triage/internal/profiler"
)

type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

type projectConfig struct {
	Package packageConfig `toml:"package"`
	Minify  minifyConfig  `toml:"minify"`
	Cache   cacheConfig   `toml:"cache"`
	Filter  filterConfig  `toml:"filter"`
	Log     logConfig     `toml:"log"`
}

type packageConfig struct {
	Name string `toml:"name"`
}

type minifyConfig struct {
	Budget int    `toml:"budget"`
	After  string `toml:"after"`
	Depth  string `toml:"depth"`
	Jobs   int    `toml:"jobs"`
}

type cacheConfig struct {
	Limit int `toml:"limit"`
}

type filterConfig struct {
	Function string `toml:"function"`
}

type logConfig struct {
	Level string `toml:"level"`
}

func findTriageToml(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "triage.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadProjectManifest walks up from startDir looking for triage.toml.
// Missing manifest is not an error: defaults apply.
func loadProjectManifest(startDir string) (*projectManifest, bool, error) {
	manifestPath, ok, err := findTriageToml(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadProjectConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &projectManifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := validateProjectConfig(&cfg); err != nil {
		return projectConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func validateProjectConfig(cfg *projectConfig) error {
	if cfg.Minify.After != "" {
		if _, err := minify.ParseMode(cfg.Minify.After); err != nil {
			return err
		}
	}
	if cfg.Minify.Depth != "" {
		if _, err := minify.ParseDepth(cfg.Minify.Depth); err != nil {
			return err
		}
	}
	if cfg.Minify.Budget < 0 {
		return fmt.Errorf("minify.budget must be non-negative")
	}
	if cfg.Cache.Limit < 0 {
		return fmt.Errorf("cache.limit must be non-negative")
	}
	return nil
}

// cacheLimit resolves the recompilation budget: flag wins over manifest,
// manifest over default.
func cacheLimit(flagLimit int, m *projectManifest) int {
	if flagLimit > 0 {
		return flagLimit
	}
	if m != nil && m.Config.Cache.Limit > 0 {
		return m.Config.Cache.Limit
	}
	return profiler.DefaultLimit
}

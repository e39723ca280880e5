package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/suhasHere/nitree"
	nbadger "github.com/suhasHere/nitree/storage/badger"
	nsqlite "github.com/suhasHere/nitree/storage/sqlite"
)

// FileConfig is the YAML configuration of the command line tool.  Flags
// override the file.
type FileConfig struct {
	Backend     string         `yaml:"backend"`
	Path        string         `yaml:"path"`
	RootMode    string         `yaml:"root_mode"`
	Columns     nitree.Columns `yaml:"columns"`
	LockTimeout time.Duration  `yaml:"lock_timeout"`
	LogLevel    string         `yaml:"log_level"`
}

func DefaultFileConfig() FileConfig {
	return FileConfig{
		Backend:     "badger",
		Path:        "nitree-data",
		RootMode:    nitree.SingleRoot.String(),
		Columns:     nitree.AllColumns,
		LockTimeout: 5 * time.Second,
		LogLevel:    "info",
	}
}

// loadConfig reads path over the defaults.  A missing file leaves the
// defaults in place.
func loadConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, nil
}

func writeConfig(path string, cfg FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (cfg FileConfig) logger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().
		Logger(), nil
}

// openStore opens the configured backend.
func (cfg FileConfig) openStore(log zerolog.Logger) (nitree.Store, error) {
	switch cfg.Backend {
	case "badger":
		bcfg := nbadger.DefaultConfig()
		bcfg.Path = cfg.Path
		bcfg.Columns = cfg.Columns
		bcfg.Logger = log
		store, err := nbadger.Open(bcfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		scfg := nsqlite.DefaultConfig()
		scfg.Path = cfg.Path
		scfg.Columns = cfg.Columns
		scfg.BusyTimeout = cfg.LockTimeout
		scfg.Logger = log
		store, err := nsqlite.Open(scfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openTree opens the store and a Tree over it.  The returned Closer closes
// the store.
func (cfg FileConfig) openTree() (*nitree.Tree, io.Closer, error) {
	log, err := cfg.logger()
	if err != nil {
		return nil, nil, err
	}
	mode, err := nitree.ParseRootMode(cfg.RootMode)
	if err != nil {
		return nil, nil, err
	}

	store, err := cfg.openStore(log)
	if err != nil {
		return nil, nil, err
	}

	tcfg := nitree.DefaultConfig()
	tcfg.RootMode = mode
	tcfg.LockTimeout = cfg.LockTimeout
	tcfg.Logger = log
	tree, err := nitree.New(store, tcfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return tree, store, nil
}

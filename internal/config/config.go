// Package config provides the configuration structure for the voice installer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/fsutil"
	"github.com/book-expert/voice-installer/internal/installer"
	"github.com/pelletier/go-toml/v2"
)

// Registry backends.
const (
	BackendNATS = "nats"
	BackendFile = "file"
)

// Defaults applied to missing settings.
const (
	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultInstallSubject = "voice.install"
	DefaultDeleteSubject  = "voice.delete"
	DefaultListSubject    = "voice.list"
	DefaultPackageBucket  = "VOICE_PACKAGES"
	DefaultRegistryBucket = "VOICE_REGISTRY"
)

var (
	// ErrUnknownBackend is returned for a registry backend other than nats or file.
	ErrUnknownBackend = errors.New("unknown registry backend")
	// ErrMissingSetting is returned when a required setting is empty after defaults.
	ErrMissingSetting = errors.New("missing configuration setting")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	InstallSubject           string `toml:"install_subject"`
	DeleteSubject            string `toml:"delete_subject"`
	ListSubject              string `toml:"list_subject"`
	PackageObjectStoreBucket string `toml:"package_object_store_bucket"`
	RegistryKVBucket         string `toml:"registry_kv_bucket"`
}

// InstallerConfig holds the package root and scratch directory settings.
type InstallerConfig struct {
	PackageRoot    string `toml:"package_root"`
	ScratchDirName string `toml:"scratch_dir_name"`
}

// RegistryConfig selects where the registry document is persisted.
type RegistryConfig struct {
	Backend string `toml:"backend"`
	FileDir string `toml:"file_dir"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty address disables it.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	Installer InstallerConfig `toml:"installer"`
	Registry  RegistryConfig  `toml:"registry"`
	Paths     PathsConfig     `toml:"paths"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// Load loads the service configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile decodes a local TOML file. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	if err == nil {
		err = toml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills every empty setting with its default.
func (c *Config) ApplyDefaults() {
	setDefault(&c.NATS.URL, DefaultNATSURL)
	setDefault(&c.NATS.InstallSubject, DefaultInstallSubject)
	setDefault(&c.NATS.DeleteSubject, DefaultDeleteSubject)
	setDefault(&c.NATS.ListSubject, DefaultListSubject)
	setDefault(&c.NATS.PackageObjectStoreBucket, DefaultPackageBucket)
	setDefault(&c.NATS.RegistryKVBucket, DefaultRegistryBucket)

	setDefault(&c.Installer.PackageRoot, fsutil.DefaultPackageRoot())
	setDefault(&c.Installer.ScratchDirName, installer.DefaultScratchDirName)
	setDefault(&c.Registry.Backend, BackendNATS)

	if c.Registry.FileDir == "" {
		c.Registry.FileDir = filepath.Join(filepath.Dir(c.Installer.PackageRoot), "registry")
	}

	setDefault(&c.Paths.BaseLogsDir, os.TempDir())
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.Installer.PackageRoot == "" {
		return fmt.Errorf("%w: installer.package_root", ErrMissingSetting)
	}

	switch c.Registry.Backend {
	case BackendNATS:
	case BackendFile:
		if c.Registry.FileDir == "" {
			return fmt.Errorf("%w: registry.file_dir", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Registry.Backend)
	}

	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

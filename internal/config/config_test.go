// Package config_test tests the configuration loading for the voice installer.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-installer/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[nats]
url = "nats://127.0.0.1:4222"
install_subject = "voices.install"
delete_subject = "voices.delete"
list_subject = "voices.list"
package_object_store_bucket = "PACKAGES"
registry_kv_bucket = "REGISTRY"

[installer]
package_root = "/var/lib/voices"
scratch_dir_name = "staging"

[registry]
backend = "file"
file_dir = "/var/lib/voice-registry"

[paths]
base_logs_dir = "/var/log/voice-installer"

[metrics]
listen_addr = ":9100"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(fullConfig), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "voices.install", cfg.NATS.InstallSubject)
	assert.Equal(t, "voices.delete", cfg.NATS.DeleteSubject)
	assert.Equal(t, "voices.list", cfg.NATS.ListSubject)
	assert.Equal(t, "PACKAGES", cfg.NATS.PackageObjectStoreBucket)
	assert.Equal(t, "REGISTRY", cfg.NATS.RegistryKVBucket)
	assert.Equal(t, "/var/lib/voices", cfg.Installer.PackageRoot)
	assert.Equal(t, "staging", cfg.Installer.ScratchDirName)
	assert.Equal(t, config.BackendFile, cfg.Registry.Backend)
	assert.Equal(t, "/var/lib/voice-registry", cfg.Registry.FileDir)
	assert.Equal(t, "/var/log/voice-installer", cfg.Paths.BaseLogsDir)
	assert.Equal(t, ":9100", cfg.Metrics.ListenAddr)

	cfg.ApplyDefaults()
	assert.Equal(t, "staging", cfg.Installer.ScratchDirName, "defaults never override explicit values")
	require.NoError(t, cfg.Validate())
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Installer.PackageRoot = "/data/voices"
	cfg.ApplyDefaults()

	assert.Equal(t, config.DefaultNATSURL, cfg.NATS.URL)
	assert.Equal(t, config.DefaultInstallSubject, cfg.NATS.InstallSubject)
	assert.Equal(t, config.DefaultDeleteSubject, cfg.NATS.DeleteSubject)
	assert.Equal(t, config.DefaultListSubject, cfg.NATS.ListSubject)
	assert.Equal(t, config.DefaultPackageBucket, cfg.NATS.PackageObjectStoreBucket)
	assert.Equal(t, config.DefaultRegistryBucket, cfg.NATS.RegistryKVBucket)
	assert.Equal(t, "import-temp", cfg.Installer.ScratchDirName)
	assert.Equal(t, config.BackendNATS, cfg.Registry.Backend)
	assert.Equal(t, filepath.Join("/data", "registry"), cfg.Registry.FileDir)
	assert.NotEmpty(t, cfg.Paths.BaseLogsDir)
	assert.Empty(t, cfg.Metrics.ListenAddr, "metrics stay disabled unless configured")
}

func TestValidate_UnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Registry.Backend = "postgres"
	cfg.ApplyDefaults()

	require.ErrorIs(t, cfg.Validate(), config.ErrUnknownBackend)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voicectl.toml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/voices", cfg.Installer.PackageRoot)
	assert.Equal(t, config.BackendFile, cfg.Registry.Backend)
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Installer.PackageRoot)
	assert.Equal(t, config.BackendNATS, cfg.Registry.Backend)
}

func TestLoadFile_InvalidTOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[installer\npackage_root = 1"), 0o600))

	_, err := config.LoadFile(path)
	require.Error(t, err)
}

package config

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/serialize"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "lax", config.Parse.Namespacing)
	assert.Equal(t, parser.DefaultPipeDepth, config.Parse.PipeDepth)
	assert.Equal(t, "1.4", config.Write.Version)
	assert.Equal(t, "tabledata", config.Write.Format)
	assert.Equal(t, "inline", config.Write.Mode)
	assert.Equal(t, StorageTree, config.Storage.Policy)
	assert.Equal(t, 30*time.Second, config.Resolver.Timeout)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Bind)
	assert.Equal(t, "auto", config.Security.APIKey)
	assert.Equal(t, "info", config.Logging.Level)
	assert.NoError(t, config.Validate())
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes = 64 hex characters

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		expectedConfig := DefaultConfig()
		expectedConfig.Parse.Namespacing = "strict"
		expectedConfig.Write.Format = "binary2"
		expectedConfig.Storage.Policy = StorageDisk
		expectedConfig.Storage.SpoolDir = "/custom/spool"
		expectedConfig.Resolver.Timeout = 5 * time.Second
		expectedConfig.Server.Port = 9000
		expectedConfig.Logging.Level = "debug"

		require.NoError(t, SaveConfig(expectedConfig, configPath))

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expectedConfig, loadedConfig)
	})

	t.Run("partial config keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		err := os.WriteFile(configPath, []byte("write:\n  format: binary\nresolver:\n  timeout: 2m\n"), 0644)
		require.NoError(t, err)

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "binary", loadedConfig.Write.Format)
		assert.Equal(t, 2*time.Minute, loadedConfig.Resolver.Timeout)
		assert.Equal(t, "1.4", loadedConfig.Write.Version)
		assert.Equal(t, 8080, loadedConfig.Server.Port)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	config := DefaultConfig()

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	config, err := BootstrapConfig(configPath, "/custom/spool")
	require.NoError(t, err)

	assert.Equal(t, "/custom/spool", config.Storage.SpoolDir)
	assert.NotEqual(t, "auto", config.Security.APIKey)
	_, err = hex.DecodeString(config.Security.APIKey)
	assert.NoError(t, err)

	assert.True(t, ConfigExists(configPath))
	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "votable")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"strict namespacing", func(c *Config) { c.Parse.Namespacing = "strict" }, ""},
		{"unknown namespacing", func(c *Config) { c.Parse.Namespacing = "loose" }, "parse.namespacing"},
		{"negative depth", func(c *Config) { c.Parse.PipeDepth = -1 }, "pipe_depth"},
		{"unknown version", func(c *Config) { c.Write.Version = "2.0" }, "write.version"},
		{"unknown format", func(c *Config) { c.Write.Format = "csv" }, "write.format"},
		{"binary2 in 1.2", func(c *Config) { c.Write.Version = "1.2"; c.Write.Format = "binary2" }, "not available"},
		{"unknown mode", func(c *Config) { c.Write.Mode = "attached" }, "write.mode"},
		{"disk without dir", func(c *Config) { c.Storage.Policy = StorageDisk; c.Storage.SpoolDir = "" }, "spool_dir"},
		{"unknown policy", func(c *Config) { c.Storage.Policy = "cloud" }, "storage.policy"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvNamespacing, "none")
	t.Setenv(EnvVersion, "1.3")

	c := DefaultConfig()
	c.ApplyEnv()
	assert.Equal(t, "none", c.Parse.Namespacing)
	assert.Equal(t, "1.3", c.Write.Version)
	assert.Equal(t, "info", c.Logging.Level)
}

func TestOptions(t *testing.T) {
	c := DefaultConfig()
	c.Parse.Namespacing = "strict"
	c.Resolver.BaseDir = "/data"
	c.Write.Format = "fits"
	c.Write.Mode = "href"

	log := logrus.New()
	log.SetOutput(io.Discard)

	popts, err := c.ParserOptions(log)
	require.NoError(t, err)
	assert.Equal(t, parser.NamespacingStrict, popts.Namespacing)
	resolver, ok := popts.Resolver.(*parser.DefaultResolver)
	require.True(t, ok)
	assert.Equal(t, "/data", resolver.BaseDir)
	assert.Equal(t, 30*time.Second, resolver.Client.Timeout)

	wopts, err := c.WriterOptions(log)
	require.NoError(t, err)
	assert.Equal(t, serialize.V14, wopts.Version)
	assert.Equal(t, serialize.FITS, wopts.Format)
	assert.Equal(t, serialize.Href, wopts.Mode)
}

func TestLoggingApply(t *testing.T) {
	log := logrus.New()
	require.NoError(t, Logging{Level: "warn", Format: "json"}.Apply(log))
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	_, ok := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	assert.Error(t, Logging{Level: "nope"}.Apply(log))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := DefaultConfig()
	config.Security.APIKey = "api-key-123"
	config.Logging.Format = "json"

	data, err := yaml.Marshal(config)
	require.NoError(t, err)

	var unmarshalled Config
	require.NoError(t, yaml.Unmarshal(data, &unmarshalled))
	assert.Equal(t, config, &unmarshalled)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	config := DefaultConfig()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	invalidPath := filepath.Join(blocker, "sub", "config.yaml")

	err := SaveConfig(config, invalidPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}

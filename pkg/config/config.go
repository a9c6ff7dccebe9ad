/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/serialize"
)

// Storage policies for parsed tables.
const (
	// StorageTree leaves rows in the document tree and decodes them on use.
	StorageTree = "tree"
	// StorageMemory collects rows into memory while parsing.
	StorageMemory = "memory"
	// StorageDisk spools rows to disk while parsing.
	StorageDisk = "disk"
)

// Environment variables read by ApplyEnv.
const (
	EnvNamespacing = "VOTABLE_NAMESPACING"
	EnvVersion     = "VOTABLE_VERSION"
	EnvLogLevel    = "VOTABLE_LOG_LEVEL"
)

// Config represents the votable tool configuration
type Config struct {
	Parse    Parse    `yaml:"parse"`
	Write    Write    `yaml:"write"`
	Storage  Storage  `yaml:"storage"`
	Resolver Resolver `yaml:"resolver"`
	Server   Server   `yaml:"server"`
	Security Security `yaml:"security"`
	Logging  Logging  `yaml:"logging"`
}

// Parse contains reader settings
type Parse struct {
	Namespacing string `yaml:"namespacing"`
	PipeDepth   int    `yaml:"pipe_depth"`
	QueueDepth  int    `yaml:"queue_depth"`
}

// Write contains writer settings
type Write struct {
	Version string `yaml:"version"`
	Format  string `yaml:"format"`
	// Mode is inline, href or none.
	Mode string `yaml:"mode"`
}

// Storage says where parsed rows are kept
type Storage struct {
	Policy   string `yaml:"policy"`
	SpoolDir string `yaml:"spool_dir"`
}

// Resolver contains settings for fetching STREAM hrefs
type Resolver struct {
	Timeout time.Duration `yaml:"timeout"`
	BaseDir string        `yaml:"base_dir"`
}

// Server contains the HTTP listener settings
type Server struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Parse: Parse{
			Namespacing: "lax",
			PipeDepth:   parser.DefaultPipeDepth,
			QueueDepth:  parser.DefaultQueueDepth,
		},
		Write: Write{
			Version: string(serialize.DefaultVersion),
			Format:  "tabledata",
			Mode:    "inline",
		},
		Storage: Storage{
			Policy:   StorageTree,
			SpoolDir: "./spool",
		},
		Resolver: Resolver{
			Timeout: 30 * time.Second,
		},
		Server: Server{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Security: Security{
			APIKey: "auto",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from the specified path. Settings missing from the
// file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Validate path to prevent directory traversal
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from VOTABLE_* environment variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvNamespacing); ok {
		c.Parse.Namespacing = v
	}
	if v, ok := os.LookupEnv(EnvVersion); ok {
		c.Write.Version = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Logging.Level = v
	}
}

// Validate checks that every setting names something that exists.
func (c *Config) Validate() error {
	if _, err := parser.ParseNamespacing(c.Parse.Namespacing); err != nil {
		return fmt.Errorf("parse.namespacing: %w", err)
	}
	if c.Parse.PipeDepth < 0 || c.Parse.QueueDepth < 0 {
		return fmt.Errorf("parse: pipe_depth and queue_depth must not be negative")
	}

	version, err := serialize.ParseVersion(c.Write.Version)
	if err != nil {
		return fmt.Errorf("write.version: %w", err)
	}
	format, err := serialize.ParseDataFormat(c.Write.Format)
	if err != nil {
		return fmt.Errorf("write.format: %w", err)
	}
	if !version.Supports(format) {
		return fmt.Errorf("write.format: %s is not available in VOTable %s", format, version)
	}
	if _, err := serialize.ParseDataMode(c.Write.Mode); err != nil {
		return fmt.Errorf("write.mode: %w", err)
	}

	switch c.Storage.Policy {
	case StorageTree, StorageMemory:
	case StorageDisk:
		if c.Storage.SpoolDir == "" {
			return fmt.Errorf("storage.spool_dir is required for the disk policy")
		}
	default:
		return fmt.Errorf("storage.policy: unknown policy %q", c.Storage.Policy)
	}

	if c.Resolver.Timeout < 0 {
		return fmt.Errorf("resolver.timeout must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d is out of range", c.Server.Port)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// ParserOptions builds reader options from the configuration. The collector for the
// disk policy is left to the caller, which owns the spool.
func (c *Config) ParserOptions(log logrus.FieldLogger) (parser.Options, error) {
	ns, err := parser.ParseNamespacing(c.Parse.Namespacing)
	if err != nil {
		return parser.Options{}, err
	}
	return parser.Options{
		Logger:      log,
		Namespacing: ns,
		Resolver: &parser.DefaultResolver{
			Client:  &http.Client{Timeout: c.Resolver.Timeout},
			BaseDir: c.Resolver.BaseDir,
		},
		PipeDepth:  c.Parse.PipeDepth,
		QueueDepth: c.Parse.QueueDepth,
	}, nil
}

// WriterOptions builds writer options from the configuration. FITS and Streams are
// left to the caller.
func (c *Config) WriterOptions(log logrus.FieldLogger) (serialize.Options, error) {
	version, err := serialize.ParseVersion(c.Write.Version)
	if err != nil {
		return serialize.Options{}, err
	}
	format, err := serialize.ParseDataFormat(c.Write.Format)
	if err != nil {
		return serialize.Options{}, err
	}
	mode, err := serialize.ParseDataMode(c.Write.Mode)
	if err != nil {
		return serialize.Options{}, err
	}
	return serialize.Options{Version: version, Format: format, Mode: mode, Logger: log}, nil
}

// Apply sets the level and formatter of log.
func (l Logging) Apply(log *logrus.Logger) error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if strings.EqualFold(l.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a new configuration with a generated API key
func BootstrapConfig(configPath string, spoolDir string) (*Config, error) {
	config := DefaultConfig()
	if spoolDir != "" {
		config.Storage.SpoolDir = spoolDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./votable.yaml"
	}

	// For Linux/macOS, use ~/.config/votable/config.yaml
	configDir := filepath.Join(homeDir, ".config", "votable")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix      = "PROVIDORE"
	ConfigFileName = "config.json"
)

var (
	ErrConfigDirNotFound = errors.New("configuration folder not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

type OpenSSL struct {
	Binary       string        `json:"binary"`
	ConfigFile   string        `json:"configFile"`
	PasswordFile string        `json:"passwordFile"`
	Extensions   string        `json:"extensions"`
	Digest       string        `json:"digest"`
	WorkDir      string        `json:"workDir"`
	Timeout      time.Duration `json:"-"`
}

type Config struct {
	Protocol string `json:"protocol"`
	Bind     string `json:"bind"`
	Port     int    `json:"port"`

	CertFile   string `json:"sslCertPath"`
	KeyFile    string `json:"sslKeyPath"`
	CACertFile string `json:"caCertPath"`

	// ConfigDir holds config.json and devices.json.
	ConfigDir        string `json:"-"`
	FirmwareStore    string `json:"firmwareStore"`
	CertificateStore string `json:"certificateStore"`

	OpenSSL OpenSSL `json:"openSSL"`

	DeviceStore      string `json:"deviceStore"`
	PostgresUser     string `json:"-"`
	PostgresDB       string `json:"-"`
	PostgresPassword string `json:"-"`
	PostgresHostname string `json:"-"`
	PostgresPort     string `json:"-"`

	CSRRequestsPerMinute int    `json:"csrRequestsPerMinute"`
	DocsDir              string `json:"docsDir"`
	LogLevel             string `json:"logLevel"`
}

func NewConfig(prefix string) (error, Config) {
	var cfg Config
	err := envconfig.Process(prefix, &cfg)
	if err != nil {
		return err, Config{}
	}
	return nil, cfg
}

// ConfigDirCascade lists the folders searched for config.json, first match wins.
func ConfigDirCascade(dir string) []string {
	var cascade []string
	if dir != "" {
		cascade = append(cascade, dir)
	}
	cascade = append(cascade, "/etc/providor")
	if home, err := os.UserHomeDir(); err == nil {
		cascade = append(cascade, filepath.Join(home, ".providor"))
	}
	return cascade
}

// FindConfigDir returns the first folder of the cascade containing config.json.
func FindConfigDir(dir string) (string, error) {
	for _, candidate := range ConfigDirCascade(dir) {
		if info, err := os.Stat(filepath.Join(candidate, ConfigFileName)); err == nil && !info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", ErrConfigDirNotFound
}

// ReadFile decodes config.json from dir.
func ReadFile(dir string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not decode %s: %w", ConfigFileName, err)
	}
	cfg.ConfigDir = dir
	return cfg, nil
}

// Merge overrides every field of c that is set in o.
func (c *Config) Merge(o Config) {
	setString(&c.Protocol, o.Protocol)
	setString(&c.Bind, o.Bind)
	if o.Port != 0 {
		c.Port = o.Port
	}
	setString(&c.CertFile, o.CertFile)
	setString(&c.KeyFile, o.KeyFile)
	setString(&c.CACertFile, o.CACertFile)
	setString(&c.ConfigDir, o.ConfigDir)
	setString(&c.FirmwareStore, o.FirmwareStore)
	setString(&c.CertificateStore, o.CertificateStore)
	setString(&c.OpenSSL.Binary, o.OpenSSL.Binary)
	setString(&c.OpenSSL.ConfigFile, o.OpenSSL.ConfigFile)
	setString(&c.OpenSSL.PasswordFile, o.OpenSSL.PasswordFile)
	setString(&c.OpenSSL.Extensions, o.OpenSSL.Extensions)
	setString(&c.OpenSSL.Digest, o.OpenSSL.Digest)
	setString(&c.OpenSSL.WorkDir, o.OpenSSL.WorkDir)
	if o.OpenSSL.Timeout != 0 {
		c.OpenSSL.Timeout = o.OpenSSL.Timeout
	}
	setString(&c.DeviceStore, o.DeviceStore)
	setString(&c.PostgresUser, o.PostgresUser)
	setString(&c.PostgresDB, o.PostgresDB)
	setString(&c.PostgresPassword, o.PostgresPassword)
	setString(&c.PostgresHostname, o.PostgresHostname)
	setString(&c.PostgresPort, o.PostgresPort)
	if o.CSRRequestsPerMinute != 0 {
		c.CSRRequestsPerMinute = o.CSRRequestsPerMinute
	}
	setString(&c.DocsDir, o.DocsDir)
	setString(&c.LogLevel, o.LogLevel)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func (c *Config) setDefaults() {
	setDefault(&c.Protocol, "http")
	setDefault(&c.Bind, "0.0.0.0")
	if c.Port == 0 {
		c.Port = 3000
	}
	setDefault(&c.DeviceStore, "file")
	setDefault(&c.PostgresPort, "5432")
	if c.CSRRequestsPerMinute == 0 {
		c.CSRRequestsPerMinute = 10
	}
	setDefault(&c.DocsDir, "docs")
	setDefault(&c.LogLevel, "info")
}

func setDefault(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// Load builds the configuration: config.json found through the folder cascade,
// then PROVIDORE_* environment variables, then overrides (command line flags).
// Relative paths are resolved against the configuration folder.
func Load(overrides Config) (Config, error) {
	err, env := NewConfig(EnvPrefix)
	if err != nil {
		return Config{}, err
	}
	dirHint := overrides.ConfigDir
	if dirHint == "" {
		dirHint = env.ConfigDir
	}
	dir, err := FindConfigDir(dirHint)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ReadFile(dir)
	if err != nil {
		return Config{}, err
	}
	env.ConfigDir = ""
	overrides.ConfigDir = ""
	cfg.Merge(env)
	cfg.Merge(overrides)
	cfg.setDefaults()
	cfg.resolvePaths()
	return cfg, cfg.Validate()
}

func (c *Config) resolvePaths() {
	for _, p := range []*string{
		&c.CertFile, &c.KeyFile, &c.CACertFile,
		&c.FirmwareStore, &c.CertificateStore,
		&c.OpenSSL.ConfigFile, &c.OpenSSL.PasswordFile, &c.OpenSSL.WorkDir,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.ConfigDir, *p)
		}
	}
}

func (c Config) HTTPS() bool {
	return strings.EqualFold(c.Protocol, "https")
}

// Address is the listen address, bind:port.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func (c Config) Validate() error {
	var missing []string
	switch strings.ToLower(c.Protocol) {
	case "http":
	case "https":
		if c.CertFile == "" {
			missing = append(missing, "sslCertPath")
		}
		if c.KeyFile == "" {
			missing = append(missing, "sslKeyPath")
		}
	default:
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, c.Protocol)
	}
	if c.FirmwareStore == "" {
		missing = append(missing, "firmwareStore")
	}
	if c.CertificateStore == "" {
		missing = append(missing, "certificateStore")
	}
	if c.OpenSSL.ConfigFile == "" {
		missing = append(missing, "openSSL.configFile")
	}
	if c.OpenSSL.PasswordFile == "" {
		missing = append(missing, "openSSL.passwordFile")
	}
	switch c.DeviceStore {
	case "file":
	case "postgres":
		if c.PostgresDB == "" || c.PostgresHostname == "" {
			missing = append(missing, "postgres database and hostname")
		}
	default:
		return fmt.Errorf("%w: unknown device store %q", ErrInvalidConfig, c.DeviceStore)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// PostgresConnStr is the lib/pq connection string of the device database.
func (c Config) PostgresConnStr() string {
	return "dbname=" + c.PostgresDB + " user=" + c.PostgresUser + " password=" + c.PostgresPassword + " host=" + c.PostgresHostname + " port=" + c.PostgresPort + " sslmode=disable"
}

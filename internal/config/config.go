package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment variables that override values from the config file.
const (
	EnvAPIURL   = "DOCCHAT_API_URL"
	EnvLanguage = "DOCCHAT_LANGUAGE"
	EnvLogLevel = "DOCCHAT_LOG_LEVEL"
)

// DefaultAPIURL is where the document chat backend listens out of the box.
const DefaultAPIURL = "http://localhost:8000/api"

// DefaultSlot names the persisted state slot.
const DefaultSlot = "chat-storage"

// Config represents the main configuration for docchat.
type Config struct {
	BaseDir string       `toml:"base_dir" validate:"required"`
	LogDir  string       `toml:"log_dir" validate:"required"`
	Remote  RemoteConfig `toml:"remote"`
	State   StateConfig  `toml:"state"`
	Upload  UploadConfig `toml:"upload"`
	Chat    ChatConfig   `toml:"chat"`
	Log     LogConfig    `toml:"log"`
}

// RemoteConfig selects the backend the client talks to.
type RemoteConfig struct {
	Type    string `toml:"type" validate:"oneof=http memory"` // "http" (default) or "memory"
	BaseURL string `toml:"base_url" validate:"required,url"`
}

// StateConfig represents configuration for persisted client state.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StateConfig struct {
	Type string `toml:"type" validate:"oneof=sqlite file memory"`
	Path string `toml:"path,omitempty" validate:"required_unless=Type memory"` // database or snapshot file
	Slot string `toml:"slot" validate:"required"`
}

// UploadConfig holds upload-related settings.
type UploadConfig struct {
	MaxSizeBytes  int64    `toml:"max_size_bytes" validate:"min=1"`
	SettleDelayMS int      `toml:"settle_delay_ms" validate:"min=0"`
	Reconcile     bool     `toml:"reconcile"`
	Ignore        []string `toml:"ignore"`
}

// ChatConfig holds chat-related settings.
type ChatConfig struct {
	Serialize         bool   `toml:"serialize"`
	AskTimeoutSeconds int    `toml:"ask_timeout_seconds" validate:"min=0"` // 0 means no timeout
	DefaultLanguage   string `toml:"default_language" validate:"oneof=en ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Stderr bool   `toml:"stderr"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Remote: RemoteConfig{
			Type:    "http",
			BaseURL: DefaultAPIURL,
		},
		State: StateConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "state.db"),
			Slot: DefaultSlot,
		},
		Upload: UploadConfig{
			MaxSizeBytes:  50 * 1024 * 1024,
			SettleDelayMS: 1000,
			Ignore:        []string{".git", ".DS_Store", "~$*"},
		},
		Chat: ChatConfig{
			DefaultLanguage: "en",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if err := m.ReadInto(r, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadInto decodes onto an existing Config. Keys absent from the input keep their
// current values, so cfg can be pre-populated with defaults.
func (m *Manager) ReadInto(r io.Reader, cfg *Config) error {
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config file at path on top of defaults. A missing file is not an
// error: defaults are returned as is, so the client works without running config init.
func Load(path string, defaults *Config) (*Config, error) {
	cfg := *defaults
	cfg.Upload.Ignore = append([]string(nil), defaults.Upload.Ignore...)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.ReadInto(f, &cfg); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv loads envFile (if it exists) into the process environment and applies the
// DOCCHAT_* overrides to cfg. Variables already set in the environment win over the file.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv(EnvLanguage); v != "" {
		cfg.Chat.DefaultLanguage = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

var validate = validator.New()

// Validate checks cfg for values the application cannot run with.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		if v := fmt.Sprint(fe.Value()); v != "" {
			msg += ": got " + strconv.Quote(v)
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

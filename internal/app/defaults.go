package app

import (
	"fmt"
	"os"
	"path/filepath"

	"docchat/internal/config"
)

// Defaults are the locations docchat uses before any config file is read.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	EnvFile    string
}

// GetDefaults resolves default locations from the environment.
//
// The config file is DOCCHAT_CONFIG_PATH, else $XDG_CONFIG_HOME/docchat.toml, else
// ~/.config/docchat.toml. Data lives under DOCCHAT_HOME, else $XDG_DATA_HOME/docchat,
// else ~/.local/share/docchat. The .env file is DOCCHAT_ENV_FILE, else .env in the
// working directory.
func GetDefaults() (*Defaults, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	envFile := os.Getenv("DOCCHAT_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		EnvFile:    envFile,
	}, nil
}

// Config returns the built-in configuration rooted at d.BaseDir.
func (d *Defaults) Config() *config.Config {
	return config.NewConfig(d.BaseDir)
}

func getConfigPath() (string, error) {
	if path := os.Getenv("DOCCHAT_CONFIG_PATH"); path != "" {
		return path, nil
	}
	dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docchat.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv("DOCCHAT_HOME"); path != "" {
		return path, nil
	}
	dir, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docchat"), nil
}

// xdgDir returns $env when it holds an absolute path, else fallback under the home
// directory. Relative XDG values are invalid and ignored.
func xdgDir(env, fallback string) (string, error) {
	if dir := os.Getenv(env); filepath.IsAbs(dir) {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, fallback), nil
}

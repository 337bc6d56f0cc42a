// Package config loads dfctl's runtime configuration through the global
// viper instance: flags bound to it win over DFCTL_-prefixed environment
// variables, which win over the YAML file, which wins over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all settings dfctl needs to talk to a reader and a card.
type Config struct {
	Reader struct {
		// Name is the PC/SC reader name substring to match; empty picks
		// the first reader the system reports.
		Name    string
		Timeout int // milliseconds
	}

	Keyvault struct {
		Path string
	}

	Log struct {
		Level  string
		Format string
	}
}

var (
	data Config
	v    *viper.Viper
)

// Load initializes viper, reads an optional config file, and unmarshals
// the result into the package-level Config. It never fails solely
// because no config file exists; defaults and env vars still apply.
func Load() (*Config, error) {
	v = viper.GetViper()

	v.SetConfigName("dfctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.dfctl")
	v.AddConfigPath("/etc/dfctl/")

	setDefaults()

	v.SetEnvPrefix("DFCTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&data); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &data, nil
}

func setDefaults() {
	v.SetDefault("reader.name", "")
	v.SetDefault("reader.timeout", 2000)
	v.SetDefault("keyvault.path", defaultKeyvaultPath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

func defaultKeyvaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dfctl/keyvault.json"
	}
	return filepath.Join(home, ".dfctl", "keyvault.json")
}

// Get returns the last-loaded configuration.
func Get() *Config {
	return &data
}

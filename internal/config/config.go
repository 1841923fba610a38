// Package config resolves runtime settings from flags, environment, an
// optional config file and defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rcliao/engram/internal/llm"
)

// Config holds resolved settings.
type Config struct {
	DBPath          string
	Provider        string
	Model           string
	APIKey          string
	BaseURL         string
	MaxTokens       int
	Timeout         time.Duration
	AutoConsolidate bool
	LogLevel        string
	LogFormat       string
	Addr            string
	CheckEvery      time.Duration
}

// Defaults registers default values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("db", filepath.Join(homeDir(), ".engram", "engram.db"))
	v.SetDefault("provider", "")
	v.SetDefault("model", "")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 4000)
	v.SetDefault("timeout", 120*time.Second)
	v.SetDefault("auto_consolidate", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("addr", ":7777")
	v.SetDefault("serve.check_interval", time.Hour)
}

// BindEnv makes every key readable from ENGRAM_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("engram")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// ReadFile merges the config file at path into v. A missing file is not an
// error unless explicit is set.
func ReadFile(v *viper.Viper, path string, explicit bool) error {
	if path == "" {
		path = DefaultFile()
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("config file: %w", err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// DefaultFile returns ~/.engram/config.yaml.
func DefaultFile() string {
	return filepath.Join(homeDir(), ".engram", "config.yaml")
}

// Load resolves a Config from v. An empty api_key falls back to the
// provider's conventional environment variable.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		DBPath:          expandHome(v.GetString("db")),
		Provider:        strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		Model:           v.GetString("model"),
		APIKey:          v.GetString("api_key"),
		BaseURL:         v.GetString("base_url"),
		MaxTokens:       v.GetInt("max_tokens"),
		Timeout:         v.GetDuration("timeout"),
		AutoConsolidate: v.GetBool("auto_consolidate"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
		Addr:            v.GetString("addr"),
		CheckEvery:      v.GetDuration("serve.check_interval"),
	}
	if c.APIKey == "" {
		switch c.Provider {
		case "anthropic":
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.DBPath == "" {
		return nil, fmt.Errorf("db path is empty")
	}
	if c.MaxTokens <= 0 {
		return nil, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return nil, fmt.Errorf("log.format must be console or json, got %q", c.LogFormat)
	}
	return c, nil
}

// LLM returns the provider settings.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Timeout:  c.Timeout,
	}
}

// NewLogger builds a zap logger writing to stderr.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	var zc zap.Config
	if c.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), strings.TrimPrefix(p, "~"))
	}
	return p
}

// Package config loads chat bridge settings from a YAML file, CHAT_BRIDGE_* environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/actual-software/chat-bridge/internal/constants"
	common "github.com/actual-software/chat-bridge/pkg/common/config"
)

const (
	// CurrentVersion is the config schema version written by Save.
	CurrentVersion = 1

	configName = "chat-bridge"
	envPrefix  = "CHAT_BRIDGE"

	// DefaultRefreshCookie is the cookie carrying the refresh token.
	DefaultRefreshCookie = "refresh_token"
	// DefaultSecureKey is the vault key for the access token.
	DefaultSecureKey = "access_token"
)

// Config is the full bridge configuration.
type Config struct {
	Version    int                     `mapstructure:"version"    yaml:"version"`
	Server     ServerConfig            `mapstructure:"server"     yaml:"server"`
	Auth       AuthConfig              `mapstructure:"auth"       yaml:"auth"`
	Connection common.ConnectionConfig `mapstructure:"connection" yaml:"connection"`
	Reconnect  common.ReconnectConfig  `mapstructure:"reconnect"  yaml:"reconnect"`
	Refresh    common.RefreshConfig    `mapstructure:"refresh"    yaml:"refresh"`
	Notify     NotifyConfig            `mapstructure:"notify"     yaml:"notify"`
	Logging    common.LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    common.MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
	Tracing    common.TracingConfig    `mapstructure:"tracing"    yaml:"tracing"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	WebSocketURL string `mapstructure:"websocket_url" yaml:"websocket_url"`
	APIURL       string `mapstructure:"api_url"       yaml:"api_url"`
}

// AuthConfig describes where the access and refresh tokens come from.
type AuthConfig struct {
	Token             string `mapstructure:"token"               yaml:"token,omitempty"`
	TokenEnv          string `mapstructure:"token_env"           yaml:"token_env,omitempty"`
	TokenFile         string `mapstructure:"token_file"          yaml:"token_file,omitempty"`
	UserID            string `mapstructure:"user_id"             yaml:"user_id,omitempty"`
	RefreshToken      string `mapstructure:"refresh_token"       yaml:"refresh_token,omitempty"`
	RefreshTokenEnv   string `mapstructure:"refresh_token_env"   yaml:"refresh_token_env,omitempty"`
	RefreshCookieName string `mapstructure:"refresh_cookie_name" yaml:"refresh_cookie_name"`
	SecureStore       bool   `mapstructure:"secure_store"        yaml:"secure_store"`
	SecureKey         string `mapstructure:"secure_key"          yaml:"secure_key"`
}

// NotifyConfig selects message-arrival side effects.
type NotifyConfig struct {
	Bell  bool        `mapstructure:"bell"  yaml:"bell"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configures the Redis fan-out.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"`
	URL      string `mapstructure:"url"      yaml:"url"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Channel  string `mapstructure:"channel"  yaml:"channel"`
}

// Load reads configuration from configPath, or from the search path when empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	setupViperConfig(v, configPath)
	setupViperEnvironment(v)

	if err := bindEnvironmentVariables(v); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg, err := unmarshalAndValidateConfig(v)
	if err != nil {
		return nil, err
	}

	if err := resolveCredentials(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("failed to load auth token: %w", err)
	}

	return cfg, nil
}

func setupViperConfig(v *viper.Viper, configPath string) {
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)

		return
	}

	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/chat-bridge")
	v.AddConfigPath("/etc/chat-bridge")
}

func setupViperEnvironment(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// bindEnvironmentVariables binds the short variable names documented for the CLI.
func bindEnvironmentVariables(v *viper.Viper) error {
	envBindings := map[string]string{
		"server.websocket_url": "CHAT_BRIDGE_WS_URL",
		"server.api_url":       "CHAT_BRIDGE_API_URL",
		"auth.token":           "CHAT_BRIDGE_TOKEN",
		"auth.user_id":         "CHAT_BRIDGE_USER_ID",
		"auth.refresh_token":   "CHAT_BRIDGE_REFRESH_TOKEN",
		"logging.level":        "CHAT_BRIDGE_LOG_LEVEL",
		"notify.redis.url":     "CHAT_BRIDGE_REDIS_URL",
	}

	for key, envVar := range envBindings {
		if err := v.BindEnv(key, envVar); err != nil {
			return fmt.Errorf("failed to bind environment variable %s: %w", envVar, err)
		}
	}

	return nil
}

// readConfigFile reads the config file. A missing file on the search path is not an error;
// an explicit path that cannot be read is.
func readConfigFile(v *viper.Viper, configPath string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if configPath == "" && errors.As(err, &notFound) {
		return nil
	}

	return fmt.Errorf("error reading config file: %w", err)
}

func unmarshalAndValidateConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", CurrentVersion)

	v.SetDefault("server.websocket_url", constants.DefaultWebSocketURL)
	v.SetDefault("server.api_url", constants.DefaultAPIURL)

	v.SetDefault("auth.refresh_cookie_name", DefaultRefreshCookie)
	v.SetDefault("auth.secure_store", true)
	v.SetDefault("auth.secure_key", DefaultSecureKey)

	setConnectionDefaults(v)
	setLoggingDefaults(v)

	v.SetDefault("notify.bell", false)
	v.SetDefault("notify.redis.enabled", false)
	v.SetDefault("notify.redis.channel", constants.DefaultRedisChannel)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.endpoint", constants.DefaultMetricsEndpoint)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "chat-bridge")
	v.SetDefault("tracing.sampler_type", "always_on")
	v.SetDefault("tracing.sampler_param", 1.0)
	v.SetDefault("tracing.exporter_type", "stdout")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.otlp_insecure", true)
}

func setConnectionDefaults(v *viper.Viper) {
	v.SetDefault("connection.handshake_timeout_ms", constants.HandshakeTimeout.Milliseconds())
	v.SetDefault("connection.write_timeout_ms", constants.WriteTimeout.Milliseconds())
	v.SetDefault("connection.ping_interval_ms", constants.PingInterval.Milliseconds())
	v.SetDefault("connection.max_message_size", constants.DefaultMaxMessageSize)
	v.SetDefault("connection.outbound_buffer", constants.DefaultOutboundBuffer)

	v.SetDefault("reconnect.initial_delay_ms", constants.ReconnectBaseDelay.Milliseconds())
	v.SetDefault("reconnect.max_delay_ms", constants.ReconnectMaxDelay.Milliseconds())
	v.SetDefault("reconnect.multiplier", constants.ReconnectMultiplier)
	v.SetDefault("reconnect.max_attempts", constants.MaxReconnectAttempts)

	v.SetDefault("refresh.safety_margin_ms", constants.RefreshSafetyMargin.Milliseconds())
	v.SetDefault("refresh.request_timeout_ms", constants.RefreshRequestTimeout.Milliseconds())
}

func setLoggingDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.include_caller", false)
	v.SetDefault("logging.sampling.enabled", false)
	v.SetDefault("logging.sampling.initial", 100)
	v.SetDefault("logging.sampling.thereafter", 100)
}

// resolveCredentials fills Token and RefreshToken from their environment variable or file
// sources when not set directly.
func resolveCredentials(auth *AuthConfig) error {
	if auth.Token == "" && auth.TokenEnv != "" {
		auth.Token = os.Getenv(auth.TokenEnv)
	}

	if auth.Token == "" && auth.TokenFile != "" {
		data, err := os.ReadFile(expandHome(auth.TokenFile))
		if err != nil {
			return fmt.Errorf("failed to read token file: %w", err)
		}

		auth.Token = strings.TrimSpace(string(data))
	}

	if auth.RefreshToken == "" && auth.RefreshTokenEnv != "" {
		auth.RefreshToken = os.Getenv(auth.RefreshTokenEnv)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}

// DefaultPath returns ~/.config/chat-bridge/chat-bridge.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".config", configName, configName+".yaml"), nil
}

// Save writes cfg as YAML to path. Inline secrets are never written.
func Save(cfg *Config, path string) error {
	out := *cfg
	out.Version = CurrentVersion
	out.Auth.Token = ""
	out.Auth.RefreshToken = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

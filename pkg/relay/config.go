package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Debug             bool          `mapstructure:"debug"`
	ListenAddr        string        `mapstructure:"listen_address"`
	APIListenAddr     string        `mapstructure:"api_listen_address"`
	MaxSessionPlayers int           `mapstructure:"max_session_players"`
	PeerTimeout       time.Duration `mapstructure:"peer_timeout"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	UDPBufferSize     int           `mapstructure:"udp_buffer_size"`
	CaptureFile       string        `mapstructure:"capture_file"`
	LogDB             string        `mapstructure:"log_db"`
	EnableNAT         bool          `mapstructure:"enable_nat"`
	NATLifetime       time.Duration `mapstructure:"nat_lifetime"`
	ConfigFile        string        `mapstructure:"config_file"`
}

func DefaultConfig() *Config {
	return &Config{
		Debug:             false,
		ListenAddr:        ":9998",
		APIListenAddr:     ":9999",
		MaxSessionPlayers: 8,
		PeerTimeout:       30 * time.Second,
		CleanupInterval:   10 * time.Second,
		UDPBufferSize:     1024 * 1024,
		NATLifetime:       time.Hour,
	}
}

// LoadConfig reads defaults, then the YAML file, then SBRW_* environment variables.
// With an empty path relay.yaml is searched in ".", /etc/sbrw-mp/ and $HOME/.sbrw-mp,
// and a missing file is not an error. An explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	v.SetDefault("debug", cfg.Debug)
	v.SetDefault("listen_address", cfg.ListenAddr)
	v.SetDefault("api_listen_address", cfg.APIListenAddr)
	v.SetDefault("max_session_players", cfg.MaxSessionPlayers)
	v.SetDefault("peer_timeout", cfg.PeerTimeout)
	v.SetDefault("cleanup_interval", cfg.CleanupInterval)
	v.SetDefault("udp_buffer_size", cfg.UDPBufferSize)
	v.SetDefault("capture_file", cfg.CaptureFile)
	v.SetDefault("log_db", cfg.LogDB)
	v.SetDefault("enable_nat", cfg.EnableNAT)
	v.SetDefault("nat_lifetime", cfg.NATLifetime)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sbrw-mp/")
		v.AddConfigPath("$HOME/.sbrw-mp")
	}
	v.SetEnvPrefix("SBRW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("relay: failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("relay: failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var ErrInvalidConfig = errors.New("relay: invalid config")

func (c *Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: listen_address is required", ErrInvalidConfig)
	case c.MaxSessionPlayers < 2:
		return fmt.Errorf("%w: max_session_players must be at least 2, got %d", ErrInvalidConfig, c.MaxSessionPlayers)
	case c.PeerTimeout <= 0:
		return fmt.Errorf("%w: peer_timeout must be positive", ErrInvalidConfig)
	case c.CleanupInterval <= 0:
		return fmt.Errorf("%w: cleanup_interval must be positive", ErrInvalidConfig)
	case c.UDPBufferSize < 0:
		return fmt.Errorf("%w: udp_buffer_size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Package config loads settings from ~/.lanchat/config.yaml with sane
// defaults for everything, so a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultGroup = "239.255.13.37"
	DefaultPort  = 40556
)

type Config struct {
	Nick            string        `mapstructure:"nick"`
	MulticastGroup  string        `mapstructure:"multicast_group"`
	Port            int           `mapstructure:"port"`
	PrivateChatPort int           `mapstructure:"private_chat_port"`
	DownloadsDir    string        `mapstructure:"downloads_dir"`
	OwnColor        int           `mapstructure:"own_color"`
	PeerTimeout     time.Duration `mapstructure:"peer_timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	IdleInterval    time.Duration `mapstructure:"idle_interval"`
	AutoAccept      bool          `mapstructure:"auto_accept"`
}

// GroupAddr is the host:port form the transport wants.
func (c *Config) GroupAddr() string {
	return fmt.Sprintf("%s:%d", c.MulticastGroup, c.Port)
}

// Load reads the config file under dir (empty means ~/.lanchat) and fills
// in defaults for anything not set.
func Load(dir string) (*Config, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".lanchat")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("nick", defaultNick())
	v.SetDefault("multicast_group", DefaultGroup)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("private_chat_port", 0)
	v.SetDefault("downloads_dir", filepath.Join(dir, "downloads"))
	v.SetDefault("own_color", 0)
	v.SetDefault("peer_timeout", 2*time.Minute)
	v.SetDefault("sweep_interval", 30*time.Second)
	v.SetDefault("idle_interval", 30*time.Second)
	v.SetDefault("auto_accept", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

func defaultNick() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

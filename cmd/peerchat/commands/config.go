package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TheusHen/p2pchat/peerchat/chat"
	"github.com/TheusHen/p2pchat/peerchat/discovery/udp"
	"github.com/TheusHen/p2pchat/peerchat/peerstore"
)

type Config struct {
	Transport  string           `mapstructure:"transport"`
	Handshake  HandshakeConfig  `mapstructure:"handshake"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Store      StoreConfig      `mapstructure:"store"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Log        LogConfig        `mapstructure:"log"`
	Chat       ChatConfig       `mapstructure:"chat"`
}

type HandshakeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type DiscoveryConfig struct {
	Port        int           `mapstructure:"port"`
	Interval    time.Duration `mapstructure:"interval"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
	Announce    bool          `mapstructure:"announce"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type TranscriptConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ChatConfig struct {
	Quit string `mapstructure:"quit"`
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("transport", "tcp")
	v.SetDefault("handshake.timeout", "10s")

	v.SetDefault("discovery.port", udp.DefaultPort)
	v.SetDefault("discovery.interval", udp.DefaultInterval.String())
	v.SetDefault("discovery.scan_timeout", "5s")
	v.SetDefault("discovery.announce", true)

	v.SetDefault("store.path", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("transcript.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("chat.quit", chat.DefaultQuitCommand)
}

// bindFlags maps persistent flags onto config keys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, flag := range map[string]string{
		"transport":         "transport",
		"handshake.timeout": "handshake-timeout",
		"discovery.port":    "discovery-port",
		"store.path":        "store",
		"metrics.addr":      "metrics-addr",
		"transcript.dir":    "transcript-dir",
		"log.level":         "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// loadConfig resolves flags, environment and the optional config file.
func loadConfig(fs *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("peerchat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/peerchat")
	v.AddConfigPath("$HOME")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix("PEERCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setConfigDefaults(v)
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Store.Path == "" {
		p, err := peerstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.Store.Path = p
	}
	if cfg.Transcript.Dir != "" {
		cfg.Transcript.Dir = expandHome(cfg.Transcript.Dir)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	switch cfg.Transport {
	case "tcp", "quic":
	default:
		return fmt.Errorf("transport must be tcp or quic, got %q", cfg.Transport)
	}
	if cfg.Discovery.Port <= 0 || cfg.Discovery.Port > 65535 {
		return fmt.Errorf("discovery.port out of range: %d", cfg.Discovery.Port)
	}
	if cfg.Handshake.Timeout < 0 {
		return fmt.Errorf("handshake.timeout must not be negative")
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

func newLogger(cfg *Config) *slog.Logger {
	level, _ := parseLevel(cfg.Log.Level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/studiowebux/relaybench/internal/logging"
	"github.com/studiowebux/relaybench/internal/nostr"
	"github.com/studiowebux/relaybench/internal/types"
)

const (
	// EnvPrefix is prepended to every environment override (RELAYBENCH_COUNT, ...)
	EnvPrefix = "RELAYBENCH"

	DefaultCount            = 100
	DefaultRate             = 50
	DefaultKeepaliveSec     = 600
	DefaultThreads          = 0
	DefaultLimit            = 10
	DefaultHandshakeTimeout = 10
	DefaultLogLevel         = "info"
)

// Config is the resolved configuration of a benchmark run
type Config struct {
	URL                 string          `mapstructure:"url" yaml:"url"`
	Count               int             `mapstructure:"count" yaml:"count"`
	Rate                int             `mapstructure:"rate" yaml:"rate"`
	KeepaliveSec        int             `mapstructure:"keepalive" yaml:"keepalive"`
	Threads             int             `mapstructure:"threads" yaml:"threads"`
	Interfaces          []string        `mapstructure:"interface" yaml:"interface,omitempty"`
	Filter              nostr.Filter    `mapstructure:",squash" yaml:",inline"`
	TLS                 types.TLSConfig `mapstructure:",squash" yaml:",inline"`
	HandshakeTimeoutSec int             `mapstructure:"handshake-timeout" yaml:"handshake-timeout"`
	MetricsAddr         string          `mapstructure:"metrics-addr" yaml:"metrics-addr,omitempty"`
	LogLevel            string          `mapstructure:"log-level" yaml:"log-level"`
	LogJSON             bool            `mapstructure:"log-json" yaml:"log-json"`
}

// New returns a viper instance with defaults and environment overrides set up
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("count", DefaultCount)
	v.SetDefault("rate", DefaultRate)
	v.SetDefault("keepalive", DefaultKeepaliveSec)
	v.SetDefault("threads", DefaultThreads)
	v.SetDefault("limit", DefaultLimit)
	v.SetDefault("handshake-timeout", DefaultHandshakeTimeout)
	v.SetDefault("log-level", DefaultLogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load merges an optional config file and the command line flags into v and
// decodes the result. Flags win over environment, environment over the file.
func Load(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*Config, error) {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration before any connection is opened
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("relay url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("relay url has no host")
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be greater than 0")
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be greater than 0")
	}
	if c.KeepaliveSec < 0 {
		return fmt.Errorf("keepalive cannot be negative")
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads cannot be negative")
	}
	if c.Filter.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if c.HandshakeTimeoutSec < 0 {
		return fmt.Errorf("handshake timeout cannot be negative")
	}
	if _, err := ParseInterfaces(c.Interfaces); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String renders the configuration on one line for the startup echo
func (c *Config) String() string {
	return fmt.Sprintf("Config{url:%s count:%d rate:%d keepalive:%d threads:%d interface:%v kinds:%v limit:%d metrics-addr:%q}",
		c.URL, c.Count, c.Rate, c.KeepaliveSec, c.Threads, c.Interfaces, c.Filter.Kinds, c.Filter.Limit, c.MetricsAddr)
}

// ParseInterfaces parses local bind addresses. Each entry is an IP, in which
// case port 0 is used, or an IP:port pair.
func ParseInterfaces(values []string) ([]*net.TCPAddr, error) {
	addrs := make([]*net.TCPAddr, 0, len(values))
	for _, value := range values {
		addr, err := parseInterface(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func parseInterface(value string) (*net.TCPAddr, error) {
	if ip := net.ParseIP(value); ip != nil {
		return &net.TCPAddr{IP: ip}, nil
	}

	host, port, err := net.SplitHostPort(value)
	if err != nil {
		return nil, fmt.Errorf("invalid interface address %q: %w", value, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid interface address %q: not an IP", value)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return nil, fmt.Errorf("invalid interface address %q: bad port", value)
	}
	return &net.TCPAddr{IP: ip, Port: p}, nil
}

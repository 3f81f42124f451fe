package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config models flux.yml.
type Config struct {
	Flux struct {
		URL     string   `yaml:"url"`
		Version string   `yaml:"version"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"flux"`
	Server struct {
		Addr          string `yaml:"addr"`
		SecretKey     string `yaml:"secret_key"`
		SecureCookies bool   `yaml:"secure_cookies"`
	} `yaml:"server"`
	RateLimit struct {
		PerSecond int `yaml:"per_second"`
		PerMinute int `yaml:"per_minute"`
	} `yaml:"rate_limit"`
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

// Duration is a time.Duration that reads bare numbers as seconds.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseTimeout(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseTimeout accepts a Go duration ("750ms", "5s") or a number of seconds ("5", "2.5").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timeout")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var cfg Config
	cfg.Flux.URL = "http://localhost:3000"
	cfg.Flux.Version = "v1"
	cfg.Flux.Timeout = Duration(5 * time.Second)
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.RateLimit.PerSecond = 2
	cfg.RateLimit.PerMinute = 60
	cfg.Log.Level = "info"
	return &cfg
}

// Validate reports every problem with the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Flux.URL == "" {
		result = multierror.Append(result, fmt.Errorf("flux.url is required"))
	} else if u, err := url.Parse(c.Flux.URL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("flux.url %q must be an absolute url", c.Flux.URL))
	}
	if strings.Trim(c.Flux.Version, "/") == "" {
		result = multierror.Append(result, fmt.Errorf("flux.version is required"))
	}
	if c.Flux.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("flux.timeout must be positive"))
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		result = multierror.Append(result, fmt.Errorf("server.addr %q: %w", c.Server.Addr, err))
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.PerMinute < 0 {
		result = multierror.Append(result, fmt.Errorf("rate_limit values must not be negative"))
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("log.level %q is not a known level", c.Log.Level))
	}
	return result.ErrorOrNil()
}

// FromYAML parses config from raw YAML bytes over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config, masking the secret key.
func (c *Config) YAML() (string, error) {
	out := *c
	if out.Server.SecretKey != "" {
		out.Server.SecretKey = "********"
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Logger builds the root logger described by the log section.
func (c *Config) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.Log.Level),
		JSONFormat: c.Log.JSON,
	})
}

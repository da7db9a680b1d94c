package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mateo19851/http-client-test/pkg/model"
)

// EnvPrefix prefixes every environment override, e.g. CONNPROBE_ITERATIONS.
const EnvPrefix = "CONNPROBE"

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the effective configuration of a connprobe invocation.
type Config struct {
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Strategy   string        `mapstructure:"strategy" yaml:"strategy"`
	Iterations int           `mapstructure:"iterations" yaml:"iterations"`
	Settle     time.Duration `mapstructure:"settle" yaml:"settle"`
	Census     CensusConfig  `mapstructure:"census" yaml:"census"`
	Client     ClientConfig  `mapstructure:"client" yaml:"client"`
	Expect     ExpectConfig  `mapstructure:"expect" yaml:"expect"`
	Log        LogConfig     `mapstructure:"log" yaml:"log"`
	Output     OutputConfig  `mapstructure:"output" yaml:"output"`
}

// CensusConfig selects how connections are enumerated and filtered.
type CensusConfig struct {
	Backend string   `mapstructure:"backend" yaml:"backend"` // auto | procnet | gopsutil | netstat
	Owner   string   `mapstructure:"owner" yaml:"owner"`     // any | self
	States  []string `mapstructure:"states" yaml:"states"`   // empty counts every state
}

// ClientConfig mirrors the HTTP transport settings.
type ClientConfig struct {
	Timeout             time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Connect             time.Duration     `mapstructure:"connect" yaml:"connect"`
	KeepAlive           time.Duration     `mapstructure:"keep_alive" yaml:"keep_alive"`
	IdleConn            time.Duration     `mapstructure:"idle_conn" yaml:"idle_conn"`
	ResponseHeader      time.Duration     `mapstructure:"response_header" yaml:"response_header"`
	TLSHandshake        time.Duration     `mapstructure:"tls_handshake" yaml:"tls_handshake"`
	ExpectContinue      time.Duration     `mapstructure:"expect_continue" yaml:"expect_continue"`
	MaxIdleConns        int               `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int               `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	HTTP2               bool              `mapstructure:"http2" yaml:"http2"`
	Insecure            bool              `mapstructure:"insecure" yaml:"insecure"`
	DisableKeepAlives   bool              `mapstructure:"disable_keep_alives" yaml:"disable_keep_alives"`
	Headers             map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
}

// ExpectConfig is the bound a run's connection delta must fall in.
type ExpectConfig struct {
	MinDelta       int  `mapstructure:"min_delta" yaml:"min_delta"`
	MaxDelta       int  `mapstructure:"max_delta" yaml:"max_delta"`
	RequireSuccess bool `mapstructure:"require_success" yaml:"require_success"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // text | json | short
	Color  bool   `mapstructure:"color" yaml:"color"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Strategy:   string(model.StrategyShared),
		Iterations: 100,
		Census: CensusConfig{
			Backend: "auto",
			Owner:   "any",
		},
		Client: ClientConfig{
			Timeout:             10 * time.Second,
			Connect:             2 * time.Second,
			KeepAlive:           30 * time.Second,
			IdleConn:            90 * time.Second,
			ResponseHeader:      5 * time.Second,
			TLSHandshake:        2 * time.Second,
			ExpectContinue:      1 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
		},
		Expect: ExpectConfig{
			MinDelta:       0,
			MaxDelta:       1,
			RequireSuccess: true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// New returns a viper instance seeded with the defaults and bound to the
// CONNPROBE_ environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("config", "")
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("iterations", d.Iterations)
	v.SetDefault("settle", d.Settle)
	v.SetDefault("census.backend", d.Census.Backend)
	v.SetDefault("census.owner", d.Census.Owner)
	v.SetDefault("census.states", d.Census.States)
	v.SetDefault("client.timeout", d.Client.Timeout)
	v.SetDefault("client.connect", d.Client.Connect)
	v.SetDefault("client.keep_alive", d.Client.KeepAlive)
	v.SetDefault("client.idle_conn", d.Client.IdleConn)
	v.SetDefault("client.response_header", d.Client.ResponseHeader)
	v.SetDefault("client.tls_handshake", d.Client.TLSHandshake)
	v.SetDefault("client.expect_continue", d.Client.ExpectContinue)
	v.SetDefault("client.max_idle_conns", d.Client.MaxIdleConns)
	v.SetDefault("client.max_idle_conns_per_host", d.Client.MaxIdleConnsPerHost)
	v.SetDefault("client.http2", d.Client.HTTP2)
	v.SetDefault("client.insecure", d.Client.Insecure)
	v.SetDefault("client.disable_keep_alives", d.Client.DisableKeepAlives)
	v.SetDefault("expect.min_delta", d.Expect.MinDelta)
	v.SetDefault("expect.max_delta", d.Expect.MaxDelta)
	v.SetDefault("expect.require_success", d.Expect.RequireSuccess)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.color", d.Output.Color)
	return v
}

// Load reads the optional config file named by the "config" key, applies
// environment and flag overrides already bound to v, and validates the
// result.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if _, err := model.ParseStrategy(c.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("iterations must be positive, got %d", c.Iterations))
	}
	if c.Settle < 0 {
		errs = append(errs, fmt.Errorf("settle cannot be negative"))
	}

	switch c.Census.Backend {
	case "auto", "procnet", "gopsutil", "netstat":
	default:
		errs = append(errs, fmt.Errorf("unknown census backend %q", c.Census.Backend))
	}
	switch c.Census.Owner {
	case "any", "self":
	default:
		errs = append(errs, fmt.Errorf("census owner must be any or self, got %q", c.Census.Owner))
	}
	for _, s := range c.Census.States {
		if model.ParseState(s) == model.StateUnknown {
			errs = append(errs, fmt.Errorf("unknown tcp state %q", s))
		}
	}

	if c.Client.Timeout < 0 || c.Client.Connect < 0 {
		errs = append(errs, fmt.Errorf("client timeouts cannot be negative"))
	}
	if c.Expect.MinDelta > c.Expect.MaxDelta {
		errs = append(errs, fmt.Errorf("expect.min_delta (%d) exceeds expect.max_delta (%d)", c.Expect.MinDelta, c.Expect.MaxDelta))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}
	switch strings.ToLower(c.Output.Format) {
	case "text", "json", "short":
	default:
		errs = append(errs, fmt.Errorf("output format must be text, json or short, got %q", c.Output.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// States returns the configured census states, parsed.
func (c *Config) States() []model.State {
	states := make([]model.State, 0, len(c.Census.States))
	for _, s := range c.Census.States {
		states = append(states, model.ParseState(s))
	}
	return states
}

// String renders the configuration as YAML.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

package app

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mateo19851/http-client-test/internal/client"
	"github.com/mateo19851/http-client-test/internal/config"
	"github.com/mateo19851/http-client-test/internal/logger"
)

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"config":              "config",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"output":              "output.format",
	"strategy":            "strategy",
	"iterations":          "iterations",
	"settle":              "settle",
	"timeout":             "client.timeout",
	"http2":               "client.http2",
	"insecure":            "client.insecure",
	"disable-keep-alives": "client.disable_keep_alives",
	"backend":             "census.backend",
	"owner":               "census.owner",
	"state":               "census.states",
	"min-delta":           "expect.min_delta",
	"max-delta":           "expect.max_delta",
	"require-success":     "expect.require_success",
}

type rootOptions struct {
	v       *viper.Viper
	noColor bool
	headers []string
	log     *logger.Logger
}

// NewRootCommand builds the connprobe command tree writing reports to out and
// logs to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	o := &rootOptions{v: config.New()}

	root := &cobra.Command{
		Use:   "connprobe",
		Short: "Check whether an HTTP client strategy leaks connections",
		Long: `connprobe sends repeated GET requests to an endpoint using one of three
client strategies and compares the live TCP connections to the endpoint's
port before and after the run.

  new      a new client and transport for every request
  factory  a new client per request over a pooled transport
  shared   one client for the whole run`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.StringP("output", "o", "text", "output format: text, json or short")
	pf.BoolVar(&o.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRunCommand(o),
		newCompareCommand(o),
		newCensusCommand(o),
		newConfigCommand(o),
		newVersionCommand(),
	)
	return root
}

// load binds cmd's flags, reads the configuration and initialises logging.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			if err := o.v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	cfg, err := config.Load(o.v)
	if err != nil {
		return nil, err
	}

	headers, err := parseHeaders(o.headers)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 && cfg.Client.Headers == nil {
		cfg.Client.Headers = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		cfg.Client.Headers[k] = v
	}

	if o.noColor || os.Getenv("NO_COLOR") != "" {
		cfg.Output.Color = false
	}

	o.log = logger.Init(logger.LogLevel(cfg.Log.Level), cfg.Log.Format, cmd.ErrOrStderr())
	o.log.Debug("configuration loaded", "config_file", o.v.ConfigFileUsed())
	return cfg, nil
}

// parseHeaders accepts "Name: value" and "Name=value".
func parseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			name, value, ok = strings.Cut(h, "=")
		}
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header %q is not Name: value", config.ErrInvalidConfig, h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func clientSettings(c config.ClientConfig) client.Settings {
	s := client.Settings{
		Timeout:           c.Timeout,
		Connect:           c.Connect,
		ConnKeepAlive:     c.KeepAlive,
		ExpectContinue:    c.ExpectContinue,
		IdleConn:          c.IdleConn,
		MaxAllIdleConns:   c.MaxIdleConns,
		MaxHostIdleConns:  c.MaxIdleConnsPerHost,
		ResponseHeader:    c.ResponseHeader,
		TLSHandshake:      c.TLSHandshake,
		HTTP2:             c.HTTP2,
		Insecure:          c.Insecure,
		DisableKeepAlives: c.DisableKeepAlives,
	}
	if len(c.Headers) > 0 {
		s.Headers = make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			s.Headers.Set(k, v)
		}
	}
	return s
}

func newConfigCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
	addProbeFlags(cmd, o)
	addCensusFlags(cmd)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "connprobe %s\n", versionString())
		},
	}
}

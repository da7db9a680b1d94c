package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mateo19851/http-client-test/internal/census"
	"github.com/mateo19851/http-client-test/internal/client"
	"github.com/mateo19851/http-client-test/internal/config"
	"github.com/mateo19851/http-client-test/internal/output"
	"github.com/mateo19851/http-client-test/internal/probe"
	"github.com/mateo19851/http-client-test/internal/tui"
	"github.com/mateo19851/http-client-test/pkg/model"
)

// report is the JSON form of one verdict.
type report struct {
	Passed     bool              `json:"passed"`
	Violations []string          `json:"violations,omitempty"`
	Result     model.ProbeResult `json:"result"`
}

func newReport(res model.ProbeResult, verdict error) report {
	r := report{Passed: verdict == nil && !res.Stopped, Result: res}
	if verdict != nil {
		r.Violations = strings.Split(verdict.Error(), "\n")
	}
	return r
}

func addProbeFlags(cmd *cobra.Command, o *rootOptions) {
	f := cmd.Flags()
	f.StringP("strategy", "s", "shared", "client strategy: new, factory or shared")
	f.IntP("iterations", "n", 100, "number of sequential requests")
	f.Duration("settle", 0, "wait before the final census")
	f.Duration("timeout", client.DefaultSettings.Timeout, "per-request timeout")
	f.Bool("http2", false, "negotiate HTTP/2 over TLS")
	f.Bool("insecure", false, "skip TLS certificate verification")
	f.Bool("disable-keep-alives", false, "close every connection after one request")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "extra request header, Name: value (repeatable)")
	f.Int("min-delta", 0, "lowest accepted connection delta")
	f.Int("max-delta", 1, "highest accepted connection delta")
	f.Bool("require-success", true, "fail when any response is not 2xx")
}

func addCensusFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend", census.BackendAuto, "census backend: auto, procnet, gopsutil or netstat")
	f.String("owner", "any", "count connections of any process or only this one (self)")
	f.StringSlice("state", nil, "count only these TCP states (default all)")
}

func endpointArg(o *rootOptions, args []string) {
	if len(args) > 0 {
		o.v.Set("endpoint", args[0])
	}
}

// newProbe builds the census and client factory described by cfg. The
// returned cleanup closes pooled transports.
func (o *rootOptions) newProbe(cfg *config.Config, opts ...probe.Option) (*probe.Probe, func(), error) {
	c, err := newCensus(cfg)
	if err != nil {
		return nil, nil, err
	}
	f := client.NewFactory(clientSettings(cfg.Client))

	base := []probe.Option{
		probe.WithSettle(cfg.Settle),
		probe.WithLogger(o.log),
		probe.WithFilter(censusFilters(cfg)...),
	}
	return probe.New(c, f, append(base, opts...)...), f.Close, nil
}

func newCensus(cfg *config.Config) (*census.Census, error) {
	return census.New(cfg.Census.Backend, census.Options{
		AttributePIDs: cfg.Census.Owner == "self",
	})
}

func censusFilters(cfg *config.Config) []census.Filter {
	var filters []census.Filter
	if cfg.Census.Owner == "self" {
		filters = append(filters, census.OwnedBy(os.Getpid()))
	}
	if states := cfg.States(); len(states) > 0 {
		filters = append(filters, census.InStates(states...))
	}
	return filters
}

func expectation(cfg *config.Config) probe.Expectation {
	return probe.Expectation{
		MinDelta:       cfg.Expect.MinDelta,
		MaxDelta:       cfg.Expect.MaxDelta,
		RequireSuccess: cfg.Expect.RequireSuccess,
	}
}

func newRunCommand(o *rootOptions) *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "run [endpoint]",
		Short: "Probe one client strategy against an endpoint",
		Example: `  connprobe run http://localhost:8080/WeatherForecast
  connprobe run -s new -n 500 --settle 1s https://api.example.com/health
  connprobe run --tui --owner self --state ESTABLISHED,TIME_WAIT http://localhost:8080/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpointArg(o, args)
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			strategy, err := model.ParseStrategy(cfg.Strategy)
			if err != nil {
				return err
			}

			var res model.ProbeResult
			if live {
				res, err = tui.Start(cmd.Context(), strategy, cfg.Endpoint, cfg.Iterations,
					func(ctx context.Context, observer probe.Observer) (model.ProbeResult, error) {
						p, cleanup, err := o.newProbe(cfg, probe.WithObserver(observer))
						if err != nil {
							return model.ProbeResult{}, err
						}
						defer cleanup()
						return p.Run(ctx, strategy, cfg.Endpoint, cfg.Iterations)
					})
			} else {
				p, cleanup, perr := o.newProbe(cfg)
				if perr != nil {
					return perr
				}
				defer cleanup()
				res, err = p.Run(cmd.Context(), strategy, cfg.Endpoint, cfg.Iterations)
			}
			if err != nil && !errors.Is(err, probe.ErrStopped) {
				return err
			}
			stopErr := err

			verdict := expectation(cfg).Check(res)
			if err := renderResults(cmd.OutOrStdout(), cfg, []model.ProbeResult{res}, []error{verdict}); err != nil {
				return err
			}
			return outcome(stopErr, []error{verdict})
		},
	}
	addProbeFlags(cmd, o)
	addCensusFlags(cmd)
	cmd.Flags().BoolVar(&live, "tui", false, "show live progress while the run is in flight")
	return cmd
}

func newCompareCommand(o *rootOptions) *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:   "compare [endpoint]",
		Short: "Probe several client strategies in turn and compare their deltas",
		Example: `  connprobe compare http://localhost:8080/WeatherForecast
  connprobe compare --strategies shared,new -n 200 -o short http://localhost:8080/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpointArg(o, args)
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}

			strategies := make([]model.Strategy, 0, len(names))
			for _, n := range names {
				s, err := model.ParseStrategy(n)
				if err != nil {
					return err
				}
				strategies = append(strategies, s)
			}

			p, cleanup, err := o.newProbe(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := p.Compare(cmd.Context(), cfg.Endpoint, cfg.Iterations, strategies...)
			if err != nil && !errors.Is(err, probe.ErrStopped) {
				return err
			}
			stopErr := err

			exp := expectation(cfg)
			verdicts := make([]error, len(results))
			for i, r := range results {
				verdicts[i] = exp.Check(r)
			}
			if err := renderResults(cmd.OutOrStdout(), cfg, results, verdicts); err != nil {
				return err
			}
			return outcome(stopErr, verdicts)
		},
	}
	addProbeFlags(cmd, o)
	addCensusFlags(cmd)
	cmd.Flags().StringSliceVar(&names, "strategies", nil, "strategies to compare (default shared,factory,new)")
	return cmd
}

func renderResults(w io.Writer, cfg *config.Config, results []model.ProbeResult, verdicts []error) error {
	color := cfg.Output.Color
	switch strings.ToLower(cfg.Output.Format) {
	case "json":
		reports := make([]report, len(results))
		for i := range results {
			reports[i] = newReport(results[i], verdicts[i])
		}
		var v any = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		out, err := output.ToJSON(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	case "short":
		for i := range results {
			output.RenderShort(w, results[i], verdicts[i], color)
		}
	default:
		if len(results) == 1 {
			output.RenderReport(w, results[0], verdicts[0], color)
		} else {
			output.RenderComparison(w, results, verdicts, color)
		}
	}
	return nil
}

// outcome turns a stop or any failed verdict into the command's error.
func outcome(stopErr error, verdicts []error) error {
	if stopErr != nil {
		return stopErr
	}
	if err := errors.Join(verdicts...); err != nil {
		return &verdictError{err: err}
	}
	return nil
}

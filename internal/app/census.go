package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mateo19851/http-client-test/internal/census"
	"github.com/mateo19851/http-client-test/internal/output"
	"github.com/mateo19851/http-client-test/internal/probe"
)

func newCensusCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "census [endpoint]",
		Short: "List the live TCP connections, optionally to one endpoint's port",
		Example: `  connprobe census
  connprobe census --state ESTABLISHED http://localhost:8080/
  connprobe census --backend gopsutil -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpointArg(o, args)
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}

			filters := censusFilters(cfg)
			if cfg.Endpoint != "" {
				ep, err := probe.ParseEndpoint(cfg.Endpoint)
				if err != nil {
					return err
				}
				filters = append(filters, census.RemotePort(ep.Port))
			}

			c, err := newCensus(cfg)
			if err != nil {
				return err
			}
			snap, err := c.Capture(cmd.Context(), census.All(filters...))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if strings.EqualFold(cfg.Output.Format, "json") {
				out, err := output.ToJSON(snap)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, out)
				return nil
			}
			output.PrintSnapshot(w, snap, cfg.Output.Color)
			return nil
		},
	}
	addCensusFlags(cmd)
	return cmd
}

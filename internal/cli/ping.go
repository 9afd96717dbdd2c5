package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/zerocache/health"
)

func newPingCmd(a *app) *cobra.Command {
	var slow time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the endpoint answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, done, err := a.openCache(cmd)
			if err != nil {
				return err
			}
			defer done()

			res := health.NewPingChecker("dzero", c, slow).Check(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Status, res.Message)
			if res.Status == health.StatusUnhealthy {
				if res.Error != nil {
					return res.Error
				}
				return errors.New(res.Message)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&slow, "slow", time.Second, "report degraded above this latency; 0 disables")
	return cmd
}

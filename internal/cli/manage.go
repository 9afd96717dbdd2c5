package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/zerocache/cache"
)

func newInvalidateCmd(a *app) *cobra.Command {
	var (
		tags  []string
		exact bool
	)
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete cached results by tag",
		Long: `Delete every cached result carrying all of the given tags.

Tags match by substring of the stored tag list unless --exact is set or
client.match is "exact".`,
		Example: `  zerocache invalidate --tag user:42
  zerocache invalidate --tag team:7 --tag report --exact`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, done, err := a.openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			match := c.Policy().Match
			if exact {
				match = cache.MatchExact
			}
			if err := c.InvalidateByTagMatch(cmd.Context(), match, tags...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d tag(s) (%s)\n", len(tags), match)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag to match; repeatable")
	cmd.Flags().BoolVar(&exact, "exact", false, "match whole tags only")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("clear deletes every row; pass --yes to confirm")
			}
			c, done, err := a.openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every row")
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired cached results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, done, err := a.openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := c.Prune(cmd.Context()); err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "expired rows pruned")
			return nil
		},
	}
}

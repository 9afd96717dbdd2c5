package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/zerocache/cache"
)

// entryView is the --meta rendering of a stored row.
type entryView struct {
	Key       string          `json:"key"`
	Tags      string          `json:"tags"`
	ExpiresAt time.Time       `json:"expires_at"`
	Fresh     bool            `json:"fresh"`
	Value     json.RawMessage `json:"value"`
}

func newGetCmd(a *app) *cobra.Command {
	var meta bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored result",
		Long: `Print the decompressed payload stored under key.

Keys are derived from a call's id, tags and options; "zerocache key"
prints the key for a given call.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := a.openCache(cmd)
			if err != nil {
				return err
			}
			defer done()
			entry, err := c.Store().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry == nil || entry.Data == "" {
				return fmt.Errorf("no entry for key %q", args[0])
			}
			raw, err := cache.DecodeBinary(entry.Data)
			if err != nil {
				return err
			}
			payload, err := cache.NewDeflateCodec().Decompress(raw)
			if err != nil {
				return err
			}
			if !meta {
				fmt.Fprintln(cmd.OutOrStdout(), payload)
				return nil
			}

			view := entryView{
				Key:       entry.Key,
				Tags:      entry.Tags,
				ExpiresAt: time.UnixMilli(entry.TTL).UTC(),
				Fresh:     entry.Fresh(time.Now()),
				Value:     json.RawMessage(payload),
			}
			if !json.Valid(view.Value) {
				quoted, _ := json.Marshal(payload)
				view.Value = quoted
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	cmd.Flags().BoolVar(&meta, "meta", false, "print the row's tags and expiry as JSON")
	return cmd
}

func newKeyCmd() *cobra.Command {
	var (
		tags       []string
		revalidate time.Duration
	)
	cmd := &cobra.Command{
		Use:   "key <id>",
		Short: "Print the storage key of a cached call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cache.New(cache.NewMemoryStore())
			if err != nil {
				return err
			}
			var opts *cache.KeyOptions
			if cmd.Flags().Changed("revalidate") {
				opts = &cache.KeyOptions{Revalidate: &revalidate}
			}
			key, err := c.Key(args[0], tags, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag of the call; repeatable")
	cmd.Flags().DurationVar(&revalidate, "revalidate", 0, "revalidate option of the call")
	return cmd
}

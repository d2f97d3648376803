package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/config"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Show the channel tables",
	Long:  `Print both channel tables: each logical channel, its offset in the wide hardware frame and the virtual endpoint that carries it.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := config.Default().Endpoints.Prefix
		if cfg != nil {
			prefix = cfg.Endpoints.Prefix
		}
		for _, d := range channel.Directions {
			printTable(channel.For(d), prefix)
		}
		return nil
	},
}

func printTable(t *channel.Table, prefix string) {
	fmt.Printf("=== %s (%d-channel hardware frame) ===\n", t.Direction(), t.Width())
	for _, e := range t.Entries() {
		fmt.Printf("  %-10s offset=%-2d endpoint=%s\n", e.Label, e.Offset, t.EndpointUID(prefix, e.ID))
	}
	fmt.Println()
}

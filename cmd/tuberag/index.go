package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func createIndexCommand(opts *rootOptions) *cobra.Command {
	var (
		maxVideos int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "index <@channel-handle>",
		Short: "Index the transcripts of a channel's latest videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Indexing.Index(cmd.Context(), args[0], maxVideos)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintln(out, "Indexing complete!")
			fmt.Fprintf(out, "\nChannel: %s\n", stats.ChannelName)
			fmt.Fprintf(out, "Videos Indexed: %d\n", stats.VideosIndexed)
			fmt.Fprintf(out, "Videos Skipped: %d\n", stats.VideosSkipped)
			fmt.Fprintf(out, "Total Chunks: %d\n", stats.TotalChunks)
			for _, s := range stats.Skipped {
				fmt.Fprintf(out, "  skipped %s (%s): %s\n", s.VideoID, s.Title, s.Reason)
			}
			fmt.Fprintln(out, "\nYou can now ask questions about this channel's content!")
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxVideos, "max", "m", 0, "Maximum number of videos to index (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")
	return cmd
}

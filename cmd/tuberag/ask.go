package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tuberag/internal/service"
)

func createAskCommand(opts *rootOptions) *cobra.Command {
	var (
		askOpts service.AskOptions
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question from the indexed transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			answer := a.Chat.Ask(cmd.Context(), strings.Join(args, " "), askOpts)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			fmt.Fprintln(out, answer.Answer)
			if len(answer.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for i, s := range answer.Sources {
					fmt.Fprintf(out, "%d. %s (%s) https://www.youtube.com/watch?v=%s\n", i+1, s.VideoTitle, s.ChannelName, s.VideoID)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&askOpts.K, "k", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().StringVar(&askOpts.SystemPrompt, "system", "", "System prompt for the generator")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}

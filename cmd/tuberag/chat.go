package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"tuberag/internal/service"
	"tuberag/internal/tui"
)

func createChatCommand(opts *rootOptions) *cobra.Command {
	var askOpts service.AskOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the indexed transcripts in an interactive view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Terminal logging would corrupt the full-screen view.
			a, err := loadApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := a.Store.Count(cmd.Context())
			if err != nil {
				return err
			}
			header := fmt.Sprintf("Collection %s: %d chunks. Generator: %s", a.Config.VectorStore.Collection, count, a.Generator.Name())
			m := tui.New(cmd.Context(), a.Chat, askOpts, header)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().IntVarP(&askOpts.K, "k", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().StringVar(&askOpts.SystemPrompt, "system", "", "System prompt for the generator")
	return cmd
}

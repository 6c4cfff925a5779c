// Command tuberag indexes YouTube channel transcripts and answers questions about them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tuberag/internal/app"
	"tuberag/internal/config"
	"tuberag/internal/logging"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tuberag",
		Short:         "Ask questions about a YouTube channel's videos",
		Long:          "tuberag indexes the transcripts of a YouTube channel into a vector store and answers questions grounded in them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML or TOML config (default ./config.yaml, then ~/.config/tuberag/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		createIndexCommand(opts),
		createAskCommand(opts),
		createChatCommand(opts),
		createClearCommand(opts),
		createInspectCommand(opts),
	)
	return root
}

// loadApp reads the config and assembles the components. console controls
// whether logs go to the terminal.
func loadApp(cmd *cobra.Command, opts *rootOptions, console bool) (*app.App, error) {
	var (
		cfg  *config.AppConfig
		path string
		err  error
	)
	if opts.configPath == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		path = opts.configPath
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	logger := logging.New(cfg.Log, console)
	logger.Debug().Str("config", path).Msg("Configuration loaded")

	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize")
		return nil, err
	}
	return a, nil
}

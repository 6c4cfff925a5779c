package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"tuberag/internal/app"
	"tuberag/internal/domain"
)

// inspectProbe is embedded to query every entry when no --query is given.
const inspectProbe = "video transcript"

type channelSummary struct {
	name   string
	videos map[string]struct{}
	chunks int
}

type videoSummary struct {
	id      string
	title   string
	channel string
	chunks  int
}

func createInspectCommand(opts *rootOptions) *cobra.Command {
	var (
		query  string
		sample int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize what the index holds per channel and video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return inspect(cmd, a, query, sample)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Also show the closest chunks for this query")
	cmd.Flags().IntVar(&sample, "sample", 3, "Number of chunks shown for --query")
	return cmd
}

func inspect(cmd *cobra.Command, a *app.App, query string, sample int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	count, err := a.Store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Collection: %s (%s store)\n", a.Config.VectorStore.Collection, a.Config.VectorStore.Type)
	fmt.Fprintf(out, "Total documents indexed: %d\n", count)
	if count == 0 {
		fmt.Fprintln(out, "\nNo documents found in the index.")
		fmt.Fprintln(out, "Index a channel first: tuberag index @handle")
		return nil
	}

	vector, err := a.Embedder.Embed(ctx, inspectProbe)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	all, err := a.Store.Search(ctx, vector, count)
	if err != nil {
		return err
	}
	printSummary(out, all)

	if query == "" {
		return nil
	}
	results, err := a.Retriever.Retrieve(ctx, query, sample)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTop %d chunks for %q:\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(out, "%d. [%.3f] %s: %s\n", i+1, r.Score, r.Metadata.VideoTitle, preview(r.Text, 160))
	}
	return nil
}

func printSummary(out io.Writer, results []domain.SearchResult) {
	channels := map[string]*channelSummary{}
	videos := map[string]*videoSummary{}
	for _, r := range results {
		m := r.Metadata
		ch, ok := channels[m.ChannelID]
		if !ok {
			ch = &channelSummary{name: orUnknown(m.ChannelName), videos: map[string]struct{}{}}
			channels[m.ChannelID] = ch
		}
		ch.videos[m.VideoID] = struct{}{}
		ch.chunks++

		v, ok := videos[m.VideoID]
		if !ok {
			v = &videoSummary{id: m.VideoID, title: orUnknown(m.VideoTitle), channel: orUnknown(m.ChannelName)}
			videos[m.VideoID] = v
		}
		v.chunks++
	}

	fmt.Fprintf(out, "\nChannels (%d):\n", len(channels))
	chList := make([]*channelSummary, 0, len(channels))
	for _, ch := range channels {
		chList = append(chList, ch)
	}
	slices.SortFunc(chList, func(a, b *channelSummary) int { return cmp.Compare(a.name, b.name) })
	for _, ch := range chList {
		fmt.Fprintf(out, "  %s: %d videos, %d chunks\n", ch.name, len(ch.videos), ch.chunks)
	}

	fmt.Fprintf(out, "\nVideos (%d):\n", len(videos))
	vList := make([]*videoSummary, 0, len(videos))
	for _, v := range videos {
		vList = append(vList, v)
	}
	slices.SortFunc(vList, func(a, b *videoSummary) int {
		return cmp.Or(cmp.Compare(a.channel, b.channel), cmp.Compare(a.title, b.title), cmp.Compare(a.id, b.id))
	})
	for _, v := range vList {
		fmt.Fprintf(out, "  %s [%s] (%s): %d chunks\n", v.title, v.id, v.channel, v.chunks)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

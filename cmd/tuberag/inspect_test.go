package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"tuberag/internal/domain"
)

func TestPrintSummary_AggregatesByChannelAndVideo(t *testing.T) {
	meta := func(ch, vid, title string) domain.Metadata {
		return domain.Metadata{ChannelID: ch, ChannelName: ch + " name", VideoID: vid, VideoTitle: title}
	}
	results := []domain.SearchResult{
		{Metadata: meta("c1", "v1", "First")},
		{Metadata: meta("c1", "v1", "First")},
		{Metadata: meta("c1", "v2", "Second")},
		{Metadata: meta("c2", "v3", "")},
	}

	var buf bytes.Buffer
	printSummary(&buf, results)
	out := buf.String()

	assert.Contains(t, out, "Channels (2):")
	assert.Contains(t, out, "c1 name: 2 videos, 3 chunks")
	assert.Contains(t, out, "c2 name: 1 videos, 1 chunks")
	assert.Contains(t, out, "Videos (3):")
	assert.Contains(t, out, "First [v1] (c1 name): 2 chunks")
	assert.Contains(t, out, "Unknown [v3] (c2 name): 1 chunks")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"index", "ask", "chat", "clear", "inspect"} {
		cmd, _, err := root.Find([]string{name})
		if assert.NoError(t, err) {
			assert.Equal(t, name, cmd.Name())
		}
	}
}

func TestClear_AbortsWithoutConfirmation(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(bytes.NewBufferString("n\n"))
	root.SetArgs([]string{"clear"})

	assert.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Aborted.")
}

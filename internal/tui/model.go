// Package tui is the interactive chat view over the indexed transcripts.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tuberag/internal/domain"
	"tuberag/internal/service"
)

// Asker is the TUI-facing subset of the chat service.
type Asker interface {
	Ask(ctx context.Context, question string, opts service.AskOptions) domain.Answer
}

// exchange is one question with its answer.
type exchange struct {
	question string
	answer   domain.Answer
}

// answerMsg delivers the result of an Ask started by the model.
type answerMsg struct {
	question string
	answer   domain.Answer
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	ctx      context.Context
	asker    Asker
	opts     service.AskOptions
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []exchange
	header   string
	status   string
	pending  bool
	ready    bool
}

// New creates a chat model. header is shown above the conversation, e.g. the
// collection name and chunk count.
func New(ctx context.Context, asker Asker, opts service.AskOptions, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		asker:    asker,
		opts:     opts,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		header:   header,
		status:   "Ready. Ctrl+C to quit.",
	}
}

// Init starts the text input cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		return answerMsg{question: question, answer: m.asker.Ask(m.ctx, question, m.opts)}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := conversationBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header lines, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-ch)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		m.history = append(m.history, exchange{question: msg.question, answer: msg.answer})
		m.status = fmt.Sprintf("Answered with %d source(s).", len(msg.answer.Sources))
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.pending = true
			m.status = fmt.Sprintf("Thinking about %q", q)
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
}

// View renders the header, conversation, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("TubeRAG Chat")
	sub := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	conversation := conversationBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	return header + "\n" + sub + "\n" + conversation + "\n" + input + "\n" + status
}

func (m Model) renderConversation() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + ex.question))
		b.WriteString("\n")
		b.WriteString(highlightBestSentence(ex.answer.Answer, ex.question))
		if len(ex.answer.Sources) > 0 {
			b.WriteString("\n")
			b.WriteString(renderSources(ex.answer.Sources))
		}
	}
	return b.String()
}

func renderSources(sources []domain.Source) string {
	lines := make([]string, 0, len(sources)+1)
	lines = append(lines, "Sources:")
	for i, s := range sources {
		lines = append(lines, fmt.Sprintf("  %d. %s (%s) https://www.youtube.com/watch?v=%s  score=%.3f",
			i+1, s.VideoTitle, s.ChannelName, s.VideoID, s.Score))
	}
	return sourceStyle.Render(strings.Join(lines, "\n"))
}

var (
	conversationBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe        = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe           = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the answer sentence sharing the most words with the question.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

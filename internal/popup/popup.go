// Package popup is the terminal front end: a question box with a streaming
// answer pane and a conversation view over the saved history.
package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"askrelay/internal/client"
	"askrelay/internal/domain"
	"askrelay/internal/history"
)

// Asker runs one question; *client.Orchestrator satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string, render func(chunk string)) (string, error)
}

type Config struct {
	Asker   Asker
	History domain.History
	Title   string
	Theme   string
	Logger  *slog.Logger
}

type viewID int

const (
	viewMain viewID = iota
	viewHistory
)

const previewLen = 45

type chunkMsg struct{ text string }

type answerMsg struct {
	text string
	err  error
}

type historyMsg struct {
	entries []domain.HistoryEntry
	err     error
}

type model struct {
	ctx     context.Context
	asker   Asker
	history domain.History
	logger  *slog.Logger
	title   string
	now     func() time.Time

	view     viewID
	inflight bool
	stream   chan tea.Msg
	answer   string
	errText  string
	status   string

	entries      []domain.HistoryEntry
	cursor       int
	confirmClear bool

	width  int
	height int

	input   textinput.Model
	body    viewport.Model
	spinner spinner.Model
	theme   uiTheme
}

func newModel(ctx context.Context, cfg Config) model {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Title == "" {
		cfg.Title = "askrelay"
	}

	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = client.MaxQuestionLength
	input.Placeholder = "Ask anything..."
	input.Focus()

	theme := newTheme(cfg.Theme)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.spinner

	return model{
		ctx:     ctx,
		asker:   cfg.Asker,
		history: cfg.History,
		logger:  cfg.Logger,
		title:   cfg.Title,
		now:     time.Now,
		input:   input,
		body:    viewport.New(0, 0),
		spinner: sp,
		theme:   theme,
	}
}

// Run starts the popup and blocks until the user quits or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(newModel(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case chunkMsg:
		m.answer += msg.text
		m.refreshBody()
		m.body.GotoBottom()
		return m, waitStream(m.stream)
	case answerMsg:
		m.inflight = false
		m.stream = nil
		if msg.err != nil {
			m.errText = msg.err.Error()
			m.status = "failed"
		} else {
			m.answer = msg.text
			m.errText = ""
			m.status = "done"
			m.input.SetValue("")
		}
		m.refreshBody()
	case historyMsg:
		if msg.err != nil {
			m.status = "Error loading history"
			m.logger.Warn("history load failed", "error", msg.err)
			break
		}
		m.entries = msg.entries
		if m.cursor >= len(m.entries) {
			m.cursor = max(0, len(m.entries)-1)
		}
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.view == viewHistory {
			return m.updateHistory(msg)
		}
		return m.updateMain(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab":
		m.view = viewHistory
		m.confirmClear = false
		return m, m.loadHistory()
	case "enter":
		if m.inflight {
			return m, nil
		}
		question := m.input.Value()
		if _, err := client.ValidateQuestion(question); err != nil {
			m.errText = err.Error()
			m.refreshBody()
			return m, nil
		}
		m.inflight = true
		m.answer = ""
		m.errText = ""
		m.status = "thinking"
		m.refreshBody()
		m.stream = make(chan tea.Msg, 256)
		go runAsk(m.ctx, m.asker, question, m.stream)
		return m, waitStream(m.stream)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.body, cmd = m.body.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateHistory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmClear {
		m.confirmClear = false
		if msg.String() == "y" || msg.String() == "Y" {
			return m, m.clearHistory()
		}
		return m, nil
	}

	switch msg.String() {
	case "esc", "tab":
		m.view = viewMain
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.entries) == 0 {
			break
		}
		e := m.entries[m.cursor]
		m.input.SetValue(e.Question)
		m.answer = e.Response
		m.errText = ""
		m.status = ""
		m.view = viewMain
		m.refreshBody()
	case "d":
		if len(m.entries) == 0 {
			break
		}
		return m, m.deleteHistory(m.cursor)
	case "C":
		if len(m.entries) > 0 {
			m.confirmClear = true
		}
	}
	return m, nil
}

// runAsk streams chunks into out and finishes with one answerMsg.
func runAsk(ctx context.Context, asker Asker, question string, out chan<- tea.Msg) {
	defer close(out)
	text, err := asker.Ask(ctx, question, func(chunk string) {
		select {
		case out <- chunkMsg{text: chunk}:
		case <-ctx.Done():
		}
	})
	select {
	case out <- answerMsg{text: text, err: err}:
	case <-ctx.Done():
	}
}

func waitStream(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m model) loadHistory() tea.Cmd {
	h, ctx := m.history, m.ctx
	return func() tea.Msg {
		entries, err := h.List(ctx)
		return historyMsg{entries: entries, err: err}
	}
}

func (m model) deleteHistory(index int) tea.Cmd {
	h, ctx := m.history, m.ctx
	return func() tea.Msg {
		if err := h.Delete(ctx, index); err != nil {
			return historyMsg{err: err}
		}
		entries, err := h.List(ctx)
		return historyMsg{entries: entries, err: err}
	}
}

func (m model) clearHistory() tea.Cmd {
	h, ctx := m.history, m.ctx
	return func() tea.Msg {
		if err := h.Clear(ctx); err != nil {
			return historyMsg{err: err}
		}
		return historyMsg{}
	}
}

func (m *model) resize() {
	contentWidth := max(40, m.width-4)
	m.input.Width = max(20, contentWidth-6)
	m.body.Width = contentWidth - 4
	m.body.Height = max(3, m.height-12)
	m.refreshBody()
}

func (m *model) refreshBody() {
	var content string
	switch {
	case m.errText != "":
		content = m.theme.errorText.Render("❌ " + m.errText)
	case m.answer != "":
		content = m.answer
		if m.body.Width > 0 {
			content = lipgloss.NewStyle().Width(m.body.Width).Render(m.answer)
		}
		content = m.theme.response.Render(content)
	}
	m.body.SetContent(content)
}

func (m model) View() string {
	header := m.theme.header.Width(max(20, m.width-4)).Render(m.title)
	var out string
	if m.view == viewHistory {
		out = lipgloss.JoinVertical(lipgloss.Left, header, m.renderHistory(), m.renderFooter())
	} else {
		out = lipgloss.JoinVertical(lipgloss.Left, header, m.renderInput(), m.renderBody(), m.renderFooter())
	}
	return m.theme.root.Render(out)
}

func (m model) renderInput() string {
	return m.theme.inputPanel.Width(max(20, m.width-4)).Render(m.input.View())
}

func (m model) renderBody() string {
	content := m.body.View()
	if m.inflight && m.answer == "" {
		content = m.spinner.View() + " Thinking..."
	}
	return m.theme.panel.Width(max(20, m.width-4)).Render(content)
}

func (m model) renderHistory() string {
	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render("Conversations"))
	b.WriteString("\n\n")
	if len(m.entries) == 0 {
		b.WriteString("No conversations yet\n")
		b.WriteString(m.theme.helpText.Render("Start chatting to see history here"))
	}
	now := m.now()
	for i, e := range m.entries {
		question := fmt.Sprintf("%-48s", history.Preview(e.Question, previewLen))
		if i == m.cursor {
			b.WriteString(m.theme.itemPick.Render("› " + question))
		} else {
			b.WriteString(m.theme.item.Render("  " + question))
		}
		b.WriteString(" " + m.theme.itemTime.Render(history.TimeAgo(e.Timestamp, now)))
		b.WriteString("\n")
	}
	if m.confirmClear {
		b.WriteString("\n")
		b.WriteString(m.theme.errorText.Render("Delete all conversation history? This cannot be undone. (y/N)"))
	}
	return m.theme.panel.Width(max(20, m.width-4)).Render(b.String())
}

func (m model) renderFooter() string {
	help := "enter ask · tab history · pgup/pgdown scroll · esc quit"
	if m.view == viewHistory {
		help = "↑/↓ select · enter reload · d delete · C clear all · tab back"
	}
	if m.status != "" {
		help = m.status + " · " + help
	}
	return m.theme.helpText.Render(help)
}

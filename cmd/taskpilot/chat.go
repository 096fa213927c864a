package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"taskpilot/cmd/taskpilot/ui"
	"taskpilot/internal/bridge"
	"taskpilot/internal/engine"
)

// runChat launches the interactive terminal chat on a single session.
func runChat(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	factory, err := buildFactory(ctx, cfg)
	if err != nil {
		return err
	}

	model, err := newChatModel(ctx, factory())
	if err != nil {
		return err
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// Chat transcript entry kinds.
type entryKind int

const (
	entryUser entryKind = iota
	entryAgent
	entryStep
	entryRoute
	entryQuestion
	entryError
)

type entry struct {
	kind entryKind
	text string
}

// Bubbletea messages for the event stream.
type streamEventMsg struct {
	ev bridge.Event
	ch <-chan bridge.Event
}

type streamClosedMsg struct{}

// chatModel is the bubbletea model for the chat view.
type chatModel struct {
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	styles   ui.Styles
	renderer *glamour.TermRenderer

	ctx    context.Context
	eng    *engine.Engine
	cancel context.CancelFunc

	entries []entry
	running bool
	ready   bool
	width   int
	height  int
}

func newChatModel(ctx context.Context, eng *engine.Engine) (*chatModel, error) {
	ta := textarea.New()
	ta.Placeholder = "Describe what you want to build, or ask a question"
	ta.Focus()
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}

	return &chatModel{
		textarea: ta,
		spinner:  sp,
		styles:   ui.NewStyles(),
		renderer: renderer,
		ctx:      ctx,
		eng:      eng,
	}, nil
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// waitForEvent reads one event from the stream.
func waitForEvent(ch <-chan bridge.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamEventMsg{ev: ev, ch: ch}
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.running {
				if cmd := m.submit(); cmd != nil {
					cmds = append(cmds, cmd)
				}
				return m, tea.Batch(cmds...)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 7
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.textarea.SetWidth(msg.Width - 4)
		m.refreshViewport()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case streamEventMsg:
		m.applyEvent(msg.ev)
		m.refreshViewport()
		if msg.ev.Terminal() {
			m.running = false
			m.releaseRun()
		}
		cmds = append(cmds, waitForEvent(msg.ch))

	case streamClosedMsg:
		m.running = false
		m.releaseRun()
		m.refreshViewport()
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit starts a workflow run for the typed message, or handles a slash
// command locally.
func (m *chatModel) submit() tea.Cmd {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return nil
	}
	m.textarea.Reset()

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.entries = append(m.entries, entry{kind: entryUser, text: input})
	m.running = true

	runCtx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel

	ch := bridge.Run(runCtx, m.eng, input, bridge.Options{KeepAlive: -1})
	m.refreshViewport()
	return waitForEvent(ch)
}

func (m *chatModel) handleCommand(input string) tea.Cmd {
	switch input {
	case "/quit", "/exit":
		if m.cancel != nil {
			m.cancel()
		}
		return tea.Quit
	case "/clear":
		m.eng.Memory().Reset()
		m.entries = nil
		m.entries = append(m.entries, entry{kind: entryStep, text: "conversation cleared"})
	case "/memory":
		turns := m.eng.Memory().Turns()
		if len(turns) == 0 {
			m.entries = append(m.entries, entry{kind: entryStep, text: "memory is empty"})
			break
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d turns in memory:\n", len(turns))
		for _, turn := range turns {
			fmt.Fprintf(&sb, "  %s: %s\n", turn.Role, turn.Content)
		}
		m.entries = append(m.entries, entry{kind: entryStep, text: sb.String()})
	case "/help":
		m.entries = append(m.entries, entry{kind: entryStep,
			text: "commands: /memory (show conversation), /clear (reset), /help, /quit"})
	default:
		m.entries = append(m.entries, entry{kind: entryError, text: "unknown command " + input + " (try /help)"})
	}
	m.refreshViewport()
	return nil
}

// releaseRun cancels the finished run's context so it does not stay
// registered on the parent.
func (m *chatModel) releaseRun() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *chatModel) applyEvent(ev bridge.Event) {
	switch ev.Kind {
	case bridge.EventStep:
		m.entries = append(m.entries, entry{kind: entryStep, text: ev.Text})
	case bridge.EventRoute:
		m.entries = append(m.entries, entry{kind: entryRoute, text: "route: " + ev.Text})
	case bridge.EventClarification:
		m.entries = append(m.entries, entry{kind: entryQuestion, text: ev.Text})
	case bridge.EventError:
		m.entries = append(m.entries, entry{kind: entryError, text: ev.Text})
	case bridge.EventFinal:
		m.entries = append(m.entries, entry{kind: entryAgent, text: ev.Text})
	}
}

func (m *chatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

func (m *chatModel) renderEntries() string {
	var sb strings.Builder
	for _, e := range m.entries {
		switch e.kind {
		case entryUser:
			sb.WriteString(m.styles.User.Render("You") + "\n")
			sb.WriteString(e.text + "\n\n")
		case entryAgent:
			sb.WriteString(m.styles.Agent.Render("taskpilot") + "\n")
			sb.WriteString(m.renderMarkdown(e.text) + "\n")
		case entryStep:
			sb.WriteString(m.styles.Step.Render("  • "+e.text) + "\n")
		case entryRoute:
			sb.WriteString(m.styles.Route.Render("  "+e.text) + "\n")
		case entryQuestion:
			sb.WriteString(m.styles.Question.Render("? "+e.text) + "\n\n")
		case entryError:
			sb.WriteString(m.styles.Error.Render("✗ "+e.text) + "\n\n")
		}
	}
	return sb.String()
}

// renderMarkdown renders assistant output, falling back to plain text if the
// renderer panics on malformed input.
func (m *chatModel) renderMarkdown(content string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = content
		}
	}()
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func (m *chatModel) View() string {
	if !m.ready {
		return "starting…"
	}

	header := m.styles.Header.Render("taskpilot chat")
	status := ""
	if m.running {
		status = m.spinner.View() + m.styles.Muted.Render(" working… (esc to quit)")
	} else if m.eng.Pending() {
		status = m.styles.Question.Render("answer the question above to continue")
	} else {
		status = m.styles.Muted.Render("enter to send, esc to quit")
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		m.styles.Input.Render(m.textarea.View()),
		status,
	)
}

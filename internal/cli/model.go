// Package cli is the interactive terminal front end for the docchat server.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/app"
	"docchat/internal/client"
)

// API is the subset of *client.Client the menu drives.
type API interface {
	Health(ctx context.Context) (client.Health, error)
	Upload(ctx context.Context, paths []string) (client.UploadResult, error)
	Ask(ctx context.Context, question string, onEvent func(app.Event) error) (string, error)
	ClearHistory(ctx context.Context) error
	WaitTask(ctx context.Context, id string, interval time.Duration) (app.Task, error)
}

// Server controls the local server process.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

type action int

const (
	actionStart action = iota
	actionStop
	actionUpload
	actionAsk
	actionClear
	actionHealth
	actionExit
)

var menuItems = []struct {
	action action
	label  string
}{
	{actionStart, "Start server"},
	{actionStop, "Stop server"},
	{actionUpload, "Upload PDFs"},
	{actionAsk, "Ask a question"},
	{actionClear, "Clear conversation history"},
	{actionHealth, "Check health"},
	{actionExit, "Exit"},
}

type mode int

const (
	modeMenu mode = iota
	modeInput
	modeBusy
)

type (
	serverMsg struct {
		started bool
		err     error
	}
	healthMsg struct {
		health client.Health
		err    error
	}
	uploadMsg struct {
		result client.UploadResult
		err    error
	}
	taskMsg struct {
		task app.Task
		err  error
	}
	clearedMsg  struct{ err error }
	askEventMsg struct{ event app.Event }
	askDoneMsg  struct {
		answer string
		err    error
	}
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	outputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model is the Bubble Tea model of the interactive menu.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	api          API
	server       Server
	pollInterval time.Duration

	mode    mode
	pending action
	cursor  int
	input   textinput.Model
	output  viewport.Model
	log     strings.Builder
	status  string
	stream  chan tea.Msg
	width   int
}

func New(api API, server Server) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 0
	return &Model{
		ctx:          ctx,
		cancel:       cancel,
		api:          api,
		server:       server,
		pollInterval: 500 * time.Millisecond,
		input:        ti,
		output:       viewport.New(80, 15),
		status:       "Choose an action with ↑/↓ and Enter.",
	}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		fw, fh := outputBoxStyle.GetFrameSize()
		m.output.Width = max(20, msg.Width-fw)
		m.output.Height = max(3, msg.Height-len(menuItems)-fh-4)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
			return m, tea.Quit
		}
		switch m.mode {
		case modeMenu:
			return m.updateMenu(msg)
		case modeInput:
			return m.updateInput(msg)
		default:
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}
	case serverMsg:
		m.mode = modeMenu
		switch {
		case msg.err != nil:
			m.fail("Server", msg.err)
		case msg.started:
			m.succeed("Server started.")
		default:
			m.succeed("Server stopped.")
		}
	case healthMsg:
		m.mode = modeMenu
		if msg.err != nil {
			m.fail("Health check", msg.err)
			break
		}
		h := msg.health
		m.println(fmt.Sprintf("status=%s model=%t index=%t processing=%t chunks=%d",
			h.Status, h.ModelInitialized, h.VectorStoreInitialized, h.IsProcessing, h.IndexChunks))
		m.status = okStyle.Render("Server is healthy.")
	case uploadMsg:
		if msg.err != nil {
			m.mode = modeMenu
			m.fail("Upload", msg.err)
			break
		}
		m.println(fmt.Sprintf("%s (%s)", msg.result.Message, strings.Join(msg.result.Files, ", ")))
		m.status = "Processing documents..."
		return m, m.waitTaskCmd(msg.result.TaskID)
	case taskMsg:
		m.mode = modeMenu
		switch {
		case msg.err != nil:
			m.fail("Processing", msg.err)
		case msg.task.Status == app.TaskFailed:
			m.fail("Processing", fmt.Errorf("%s", msg.task.Error))
		default:
			m.succeed(fmt.Sprintf("Indexed %d chunks from %d file(s).", msg.task.ChunkCount, len(msg.task.Files)))
		}
	case clearedMsg:
		m.mode = modeMenu
		if msg.err != nil {
			m.fail("Clear history", msg.err)
			break
		}
		m.succeed("Conversation history cleared.")
	case askEventMsg:
		m.renderEvent(msg.event)
		return m, waitFor(m.stream)
	case askDoneMsg:
		m.mode = modeMenu
		m.stream = nil
		if msg.err != nil {
			m.fail("Ask", msg.err)
			break
		}
		m.status = okStyle.Render("Answer complete.")
	}
	m.refresh()
	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(menuItems)) % len(menuItems)
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(menuItems)
	case "q":
		m.cancel()
		return m, tea.Quit
	case "enter":
		return m.run(menuItems[m.cursor].action)
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.input.Reset()
		m.mode = modeMenu
		m.status = "Cancelled."
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		m.input.Blur()
		m.input.Reset()
		if value == "" {
			m.mode = modeMenu
			m.status = "Nothing entered."
			return m, nil
		}
		return m.submit(value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) run(a action) (tea.Model, tea.Cmd) {
	switch a {
	case actionExit:
		m.cancel()
		return m, tea.Quit
	case actionUpload:
		return m.prompt(a, "Comma-separated PDF paths")
	case actionAsk:
		return m.prompt(a, "Your question")
	case actionStart:
		m.busy("Starting server...")
		return m, func() tea.Msg { return serverMsg{started: true, err: m.server.Start(m.ctx)} }
	case actionStop:
		m.busy("Stopping server...")
		return m, func() tea.Msg { return serverMsg{err: m.server.Stop()} }
	case actionClear:
		m.busy("Clearing history...")
		return m, func() tea.Msg { return clearedMsg{err: m.api.ClearHistory(m.ctx)} }
	case actionHealth:
		m.busy("Checking health...")
		return m, func() tea.Msg {
			h, err := m.api.Health(m.ctx)
			return healthMsg{health: h, err: err}
		}
	}
	return m, nil
}

func (m *Model) prompt(a action, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = modeInput
	m.pending = a
	m.input.Placeholder = placeholder
	m.status = "Enter to submit, Esc to cancel."
	return m, m.input.Focus()
}

func (m *Model) submit(value string) (tea.Model, tea.Cmd) {
	switch m.pending {
	case actionUpload:
		paths := ParsePaths(value)
		m.println("Uploading " + strings.Join(paths, ", "))
		m.busy("Uploading...")
		return m, func() tea.Msg {
			res, err := m.api.Upload(m.ctx, paths)
			return uploadMsg{result: res, err: err}
		}
	case actionAsk:
		m.println("")
		m.println(titleStyle.Render("Q: ") + value)
		m.busy("Thinking...")
		return m, m.askCmd(value)
	}
	m.mode = modeMenu
	return m, nil
}

func (m *Model) askCmd(question string) tea.Cmd {
	ch := make(chan tea.Msg, 16)
	m.stream = ch
	ctx := m.ctx
	go func() {
		defer close(ch)
		answer, err := m.api.Ask(ctx, question, func(e app.Event) error {
			select {
			case ch <- askEventMsg{event: e}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		select {
		case ch <- askDoneMsg{answer: answer, err: err}:
		case <-ctx.Done():
		}
	}()
	return waitFor(ch)
}

func waitFor(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) waitTaskCmd(id string) tea.Cmd {
	return func() tea.Msg {
		task, err := m.api.WaitTask(m.ctx, id, m.pollInterval)
		return taskMsg{task: task, err: err}
	}
}

func (m *Model) renderEvent(e app.Event) {
	switch e.Type {
	case app.EventContext:
		m.println(dimStyle.Render(fmt.Sprintf("(%d context chunks)", e.Count)))
		m.write(titleStyle.Render("A: "))
	case app.EventChunk:
		m.write(e.Text)
	case app.EventComplete:
		m.write("\n")
	}
	m.refresh()
}

// ParsePaths splits comma-separated input into paths, dropping blanks and
// surrounding quotes.
func ParsePaths(input string) []string {
	var paths []string
	for _, p := range strings.Split(input, ",") {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func (m *Model) busy(status string) {
	m.mode = modeBusy
	m.status = status
}

func (m *Model) succeed(text string) {
	m.println(okStyle.Render(text))
	m.status = okStyle.Render(text)
}

func (m *Model) fail(what string, err error) {
	text := fmt.Sprintf("%s failed: %v", what, err)
	m.println(errorStyle.Render(text))
	m.status = errorStyle.Render(text)
}

func (m *Model) write(s string) {
	m.log.WriteString(s)
}

func (m *Model) println(s string) {
	m.log.WriteString(s)
	m.log.WriteString("\n")
}

// Output is everything printed so far.
func (m *Model) Output() string {
	return m.log.String()
}

func (m *Model) refresh() {
	m.output.SetContent(m.log.String())
	m.output.GotoBottom()
}

func (m *Model) View() string {
	var b strings.Builder
	server := dimStyle.Render("server: stopped")
	if m.server != nil && m.server.Running() {
		server = okStyle.Render("server: running")
	}
	b.WriteString(titleStyle.Render("docchat") + "  " + server + "\n")
	b.WriteString(outputBoxStyle.Render(m.output.View()) + "\n")

	switch m.mode {
	case modeInput:
		b.WriteString(m.input.View() + "\n")
	default:
		for i, item := range menuItems {
			line := "  " + item.label
			if i == m.cursor && m.mode == modeMenu {
				line = cursorStyle.Render("> " + item.label)
			}
			b.WriteString(line + "\n")
		}
	}
	b.WriteString(m.status)
	return b.String()
}

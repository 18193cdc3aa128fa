package tui

import (
	"strings"

	"CatalogTx/internal/interpreter"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// execMsg carries the output of one executed command line.
type execMsg struct {
	line   string
	output string
	err    error
}

// execCmd runs the line off the Update loop and reports back with an execMsg.
func execCmd(in *interpreter.Interpreter, line string) tea.Cmd {
	return func() tea.Msg {
		out, err := in.Execute(line)
		return execMsg{line: line, output: out, err: err}
	}
}

type keyMap struct {
	Quit key.Binding
	Run  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("ctrl+c", "quit"),
		),
		Run: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "run command"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Run},
		{k.Quit},
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subtle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("44")).Bold(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

type model struct {
	interp   *interpreter.Interpreter
	input    textarea.Model
	viewport viewport.Model
	help     help.Model
	keys     keyMap
	history  []string
	status   string
	loading  bool
	err      error
	width    int
	height   int
}

func newModel(in *interpreter.Interpreter) model {
	ta := textarea.New()
	ta.Placeholder = "Type a command, e.g. begin. Use :q or exit to leave."
	ta.Focus()
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.FocusedStyle.CursorLine = ta.FocusedStyle.CursorLine.Background(lipgloss.Color("236"))
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent(subtle.Render("Output will appear here. Type help for the command list."))

	h := help.New()
	h.ShowAll = true

	return model{
		interp:   in,
		input:    ta,
		viewport: vp,
		help:     h,
		keys:     newKeyMap(),
		status:   "Backups in " + in.Store().BackupDir(),
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		inputHeight, resultsHeight := layout(m.height)
		m.input.SetWidth(m.width - 6)
		m.input.SetHeight(inputHeight)
		m.viewport.Width = m.width - 6
		m.viewport.Height = resultsHeight
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}

		if key.Matches(msg, m.keys.Run) {
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.loading {
				// Swallow the newline the textarea would insert.
				return m, nil
			}
			if line == ":q" || line == ":quit" || strings.EqualFold(line, "exit") {
				return m, tea.Quit
			}

			m.loading = true
			m.status = "Running..."
			m.err = nil
			m.input.Reset()
			return m, execCmd(m.interp, line)
		}
	case execMsg:
		m.loading = false
		entry := subtle.Render("> "+msg.line) + "\n"
		if msg.output != "" {
			entry += msg.output + "\n"
		}
		if msg.err != nil {
			m.err = msg.err
			m.status = "Command failed"
			entry += errorStyle.Render(msg.err.Error()) + "\n"
		} else {
			m.status = "Transaction " + m.interp.Store().Status().String()
		}
		m.history = append(m.history, entry)
		m.viewport.SetContent(strings.Join(m.history, "\n"))
		m.viewport.GotoBottom()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// layout splits the space left by the fixed chrome (headers, labels, blanks,
// status, help) between the input box and the output viewport.
func layout(height int) (inputHeight, resultsHeight int) {
	const chromeLines = 10
	const minInputHeight = 3
	const minResultsHeight = 3

	available := max(height-chromeLines, 1)
	if available <= minInputHeight+minResultsHeight {
		inputHeight = max(available/2, 1)
		resultsHeight = max(available-inputHeight, 1)
		return inputHeight, resultsHeight
	}

	inputHeight = max(available/3, minInputHeight)
	resultsHeight = max(available-inputHeight, minResultsHeight)
	return inputHeight, resultsHeight
}

func (m model) View() string {
	title := titleStyle.Render("CatalogTx") + " " + subtle.Render("transaction console")
	dir := subtle.Render("Backup directory: " + m.interp.Store().BackupDir())

	inputBox := boxStyle.Render(m.input.View())
	resultBox := boxStyle.Render(m.viewport.View())

	status := m.status
	if m.loading {
		status += " (working...)"
	}
	statusLine := statusStyle.Render(status)
	if m.err != nil {
		statusLine += "  " + errorStyle.Render(m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		dir,
		"",
		"Command:",
		inputBox,
		"",
		"Output:",
		resultBox,
		"",
		statusLine,
		m.help.View(m.keys),
	)
}

// Run starts the full screen console. An open transaction is rolled back
// when the console closes.
func Run(in *interpreter.Interpreter) error {
	p := tea.NewProgram(newModel(in), tea.WithAltScreen())
	_, err := p.Run()
	if in.Store().IsActive() {
		if rbErr := in.Store().Rollback(); rbErr != nil && err == nil {
			err = rbErr
		}
	}
	return err
}

package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/luabridge/bridge"
	"github.com/wippyai/luabridge/config"
)

const maxHistory = 200

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D0D0D0"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type entry struct {
	err    error
	input  string
	output string
	result string
}

type replModel struct {
	state   *bridge.State
	out     *bytes.Buffer
	files   []string
	entries []entry
	lines   []string
	funcs   []string
	input   textinput.Model
	recall  int
	busy    bool
}

type evalResultMsg struct {
	entry entry
	funcs []string
}

func newReplModel(s *bridge.State, out *bytes.Buffer, files []string) *replModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "lua expression or statement"
	ti.Width = 72
	ti.Focus()
	return &replModel{
		state: s,
		out:   out,
		files: files,
		input: ti,
		funcs: globalFunctions(s),
	}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.SetValue("")
			m.lines = append(m.lines, line)
			m.recall = len(m.lines)
			return m, m.eval(line)

		case "up":
			if m.recall > 0 {
				m.recall--
				m.input.SetValue(m.lines[m.recall])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.recall < len(m.lines)-1 {
				m.recall++
				m.input.SetValue(m.lines[m.recall])
				m.input.CursorEnd()
			} else {
				m.recall = len(m.lines)
				m.input.SetValue("")
			}
			return m, nil

		case "esc":
			m.entries = nil
			return m, nil
		}

	case evalResultMsg:
		m.busy = false
		m.entries = append(m.entries, msg.entry)
		if len(m.entries) > maxHistory {
			m.entries = m.entries[len(m.entries)-maxHistory:]
		}
		m.funcs = msg.funcs
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// eval runs line as an expression first, then as a statement.
func (m *replModel) eval(line string) tea.Cmd {
	return func() tea.Msg {
		e := entry{input: line}
		m.out.Reset()

		fn, err := m.state.LoadString("return "+line, "=stdin")
		if err != nil {
			fn, err = m.state.LoadString(line, "=stdin")
		}
		if err != nil {
			e.err = err
			return evalResultMsg{entry: e, funcs: globalFunctions(m.state)}
		}
		results, err := fn.Call()
		fn.Close()
		defer closeResults(results)

		e.output = strings.TrimRight(m.out.String(), "\n")
		e.err = err
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = formatValue(r)
		}
		e.result = strings.Join(parts, "\t")
		return evalResultMsg{entry: e, funcs: globalFunctions(m.state)}
	}
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Lua REPL"))
	if len(m.files) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(m.files, " "))
	}
	b.WriteString("\n\n")

	if len(m.funcs) > 0 {
		b.WriteString("Functions: ")
		names := make([]string, len(m.funcs))
		for i, f := range m.funcs {
			names[i] = funcStyle.Render(f)
		}
		b.WriteString(strings.Join(names, " "))
		b.WriteString("\n\n")
	}

	for _, e := range m.entries {
		b.WriteString(inputStyle.Render("> " + e.input))
		b.WriteString("\n")
		if e.output != "" {
			b.WriteString(outputStyle.Render(e.output))
			b.WriteString("\n")
		}
		switch {
		case e.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", e.err)))
			b.WriteString("\n")
		case e.result != "":
			b.WriteString(resultStyle.Render(e.result))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • ↑/↓ history • esc clear • ctrl+c quit"))

	return b.String()
}

// globalFunctions lists the functions stored directly in the globals table.
func globalFunctions(s *bridge.State) []string {
	n, err := s.Native()
	if err != nil {
		return nil
	}
	var names []string
	n.L.G.Global.ForEach(func(k, v lua.LValue) {
		if _, ok := v.(*lua.LFunction); !ok {
			return
		}
		if name, ok := k.(lua.LString); ok {
			names = append(names, string(name))
		}
	})
	sort.Strings(names)
	return names
}

func runInteractive(cfg *config.Config, log *zap.Logger, files []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	var out bytes.Buffer
	s, err := newState(cfg, log, &out)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, file := range files {
		results, err := s.DoFile(file)
		closeResults(results)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}

	p := tea.NewProgram(newReplModel(s, &out, files), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

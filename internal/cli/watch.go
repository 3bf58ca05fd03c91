package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Стили просмотра прогресса.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4")).
			MarginBottom(1)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F8B500"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))
)

func newWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch ID...",
		Short: "Watch download progress until all downloads finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if plain || out.Structured() {
				return watchPlain(cmd.Context(), client, args, out)
			}
			return watchTUI(cmd.Context(), client, args)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print one line per change instead of the progress view")

	return cmd
}

// allTerminal — все ids присутствуют и завершены.
func allTerminal(ids []string, tasks map[string]TaskResponse) bool {
	for _, id := range ids {
		t, ok := tasks[id]
		if !ok || !t.State.IsTerminal() {
			return false
		}
	}
	return true
}

// watchPlain печатает строку на каждое изменение задачи.
func watchPlain(ctx context.Context, client *Client, ids []string, out *Output) error {
	last := make(map[string]TaskResponse)

	return client.WatchTasks(ctx, ids, func(tasks map[string]TaskResponse) error {
		for _, id := range ids {
			t, ok := tasks[id]
			if !ok {
				continue
			}
			if prev, seen := last[id]; seen && prev.State == t.State {
				continue
			}
			last[id] = t

			if out.Structured() {
				out.Print(nil, nil, t)
			} else {
				out.Line("%s\t%s\t%s", t.ID, t.State.Kind, formatProgress(t))
			}
		}

		if allTerminal(ids, tasks) {
			return errStopStream
		}
		return nil
	})
}

// --- Progress view ---

// Сообщения модели.
type (
	// tasksMsg — новый снимок задач.
	tasksMsg map[string]TaskResponse

	// streamDoneMsg — поток завершился (err == nil — штатно).
	streamDoneMsg struct{ err error }
)

// watchModel — Bubble Tea модель просмотра прогресса.
type watchModel struct {
	ids      []string
	tasks    map[string]TaskResponse
	progress progress.Model
	updates  <-chan tea.Msg
	err      error
	done     bool
}

func newWatchModel(ids []string, updates <-chan tea.Msg) watchModel {
	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 40

	return watchModel{
		ids:      ids,
		tasks:    make(map[string]TaskResponse),
		progress: prog,
		updates:  updates,
	}
}

// Init запускает ожидание первого снимка.
func (m watchModel) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

// waitForUpdate ждёт следующее сообщение из потока.
func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return streamDoneMsg{}
		}
		return msg
	}
}

// Update обрабатывает сообщения.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-40, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case tasksMsg:
		m.tasks = msg
		if allTerminal(m.ids, m.tasks) {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForUpdate(m.updates)

	case streamDoneMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// View отрисовывает задачи.
func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Downloads"))
	b.WriteString("\n")

	for _, id := range m.ids {
		b.WriteString(m.viewTask(id))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	if !m.done {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("q: quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m watchModel) viewTask(id string) string {
	label := idStyle.Render(fmt.Sprintf("%-24s", id))

	t, ok := m.tasks[id]
	if !ok {
		return label + " " + dimStyle.Render("not found")
	}

	switch t.State.Kind {
	case "DOWNLOADING":
		var percent float64
		if t.State.TotalBytes > 0 {
			percent = float64(t.State.BytesWritten) / float64(t.State.TotalBytes)
		}
		return label + " " + m.progress.ViewAs(percent) + " " + dimStyle.Render(formatProgress(t))
	case "COMPLETED":
		return label + " " + successStyle.Render("completed")
	case "FAILED":
		return label + " " + errorStyle.Render("failed")
	case "CANCELLED":
		return label + " " + warningStyle.Render("cancelled")
	default:
		return label + " " + dimStyle.Render(strings.ToLower(t.State.Kind))
	}
}

// watchTUI запускает просмотр прогресса в терминале.
func watchTUI(ctx context.Context, client *Client, ids []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan tea.Msg)
	go func() {
		defer close(updates)

		err := client.WatchTasks(ctx, ids, func(tasks map[string]TaskResponse) error {
			select {
			case updates <- tasksMsg(tasks):
				return nil
			case <-ctx.Done():
				return errStopStream
			}
		})
		if err != nil {
			select {
			case updates <- streamDoneMsg{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	final, err := tea.NewProgram(newWatchModel(ids, updates), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("run progress view: %w", err)
	}
	if m, ok := final.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

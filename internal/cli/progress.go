package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/physio-scribe/internal/persist"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// restoreStepMsg reports one processed backup.
type restoreStepMsg struct {
	done, total int
	rec         persist.RestoreRecord
}

// restoreDoneMsg carries the final summary.
type restoreDoneMsg struct {
	summary persist.RestoreSummary
	err     error
}

// restoreModel is the bubbletea model for backup restoration.
type restoreModel struct {
	events   <-chan tea.Msg
	cancel   context.CancelFunc
	progress progress.Model
	theme    Theme

	done, total int
	last        *persist.RestoreRecord
	summary     persist.RestoreSummary
	finished    bool
	quitting    bool
	err         error
}

func newRestoreModel(events <-chan tea.Msg, cancel context.CancelFunc) restoreModel {
	return restoreModel{
		events: events,
		cancel: cancel,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

func (m restoreModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.progress.Init())
}

func (m restoreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Stop after the backup in flight; unprocessed backups stay on disk.
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case restoreStepMsg:
		m.done, m.total = msg.done, msg.total
		m.last = &msg.rec
		return m, m.waitForEvent()

	case restoreDoneMsg:
		m.summary, m.err = msg.summary, msg.err
		m.finished = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m restoreModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m restoreModel) renderContent() string {
	if m.finished || m.quitting {
		return m.finalView()
	}
	if m.total == 0 {
		return m.theme.statusStyle().Render("Reading backups...") + "\n"
	}

	pct := float64(m.done) / float64(m.total)
	status := m.theme.statusStyle().Render("[restoring]")
	counts := fmt.Sprintf("%d/%d backups", m.done, m.total)

	var last string
	if m.last != nil {
		if m.last.Result.Success {
			last = m.theme.completedStyle().Render("✓ ") + m.last.Key
		} else {
			last = m.theme.errorStyle().Render("✗ ") + m.last.Key
		}
	}
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop; remaining backups are kept")

	return fmt.Sprintf("%s %s %s\n%s\n%s\n", status, m.progress.ViewAs(pct), counts, last, hint)
}

func (m restoreModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nStopped after %d of %d backups.\nRun 'scribe backups restore' again to continue.\n", m.done, m.total)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Restore failed: %s\n", m.err))
	}
	if m.summary.Total == 0 {
		return m.theme.completedStyle().Render("✓ No pending backups") + "\n"
	}

	var output string
	output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
	output += fmt.Sprintf("  Backups:  %d\n", m.summary.Total)
	output += fmt.Sprintf("  Restored: %d\n", m.summary.Restored)
	if m.summary.Failed > 0 {
		output += m.theme.errorStyle().Render(fmt.Sprintf("  Failed:   %d\n", m.summary.Failed))
		for _, r := range m.summary.Results {
			if !r.Result.Success {
				output += fmt.Sprintf("  • %s: %s\n", r.Key, r.Result.Error)
			}
		}
	}
	return output
}

// waitForEvent blocks on the next restore event in a command goroutine.
func (m restoreModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

// restorer is the part of persist.Manager the progress UI drives.
type restorer interface {
	RestoreAllBackups(ctx context.Context, progress persist.RestoreProgress) (persist.RestoreSummary, error)
}

// startRestore runs the restoration in the background and streams its
// progress as bubbletea messages. The channel is closed after the final
// restoreDoneMsg.
func startRestore(ctx context.Context, r restorer) <-chan tea.Msg {
	events := make(chan tea.Msg, 16)
	go func() {
		defer close(events)
		send := func(msg tea.Msg) {
			select {
			case events <- msg:
			case <-ctx.Done():
			}
		}
		summary, err := r.RestoreAllBackups(ctx, func(done, total int, rec persist.RestoreRecord) {
			send(restoreStepMsg{done: done, total: total, rec: rec})
		})
		send(restoreDoneMsg{summary: summary, err: err})
	}()
	return events
}

// RunRestoreProgress restores pending backups behind an interactive
// progress bar. It returns an error when the restoration itself fails or
// any backup could not be saved.
func RunRestoreProgress(ctx context.Context, r restorer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newRestoreModel(startRestore(ctx, r), cancel)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(restoreModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
		if m.summary.Failed > 0 {
			return fmt.Errorf("%d backups could not be restored", m.summary.Failed)
		}
	}
	return nil
}

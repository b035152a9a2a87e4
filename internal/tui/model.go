// Package tui renders a retreat playback in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hperssn/sages/internal/domain"
	"github.com/hperssn/sages/internal/runner"
)

const submitTimeout = 30 * time.Second

type stateMsg runner.SessionState

type streamClosedMsg struct{}

type submitResultMsg struct {
	record *domain.CompletionRecord
	err    error
}

// Model is the bubbletea model for one playback. The runner stays the
// owner of session state; the model only renders its snapshots and
// forwards key presses as commands.
type Model struct {
	runner   *runner.SessionRunner
	recorder *runner.Recorder
	title    string

	updates <-chan runner.SessionState
	stop    func()

	state      runner.SessionState
	progress   progress.Model
	notes      textarea.Model
	rating     int
	submitting bool
	record     *domain.CompletionRecord
	err        error
	width      int
	styles     styles
}

func New(r *runner.SessionRunner, rec *runner.Recorder) Model {
	quit := make(chan struct{})

	notes := textarea.New()
	notes.Placeholder = "What stayed with you?"
	notes.ShowLineNumbers = false
	notes.CharLimit = 2000
	notes.SetHeight(4)
	notes.SetWidth(72)

	st, _ := r.Snapshot()

	return Model{
		runner:   r,
		recorder: rec,
		title:    r.Retreat().Title,
		updates:  r.Watch(quit),
		stop:     sync.OnceFunc(func() { close(quit) }),
		state:    st,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(72)),
		notes:    notes,
		styles:   defaultStyles(),
		width:    80,
	}
}

// Run blocks until the user quits and returns the submitted record, if any.
func Run(r *runner.SessionRunner, rec *runner.Recorder, opts ...tea.ProgramOption) (*domain.CompletionRecord, error) {
	m := New(r, rec)
	defer m.stop()

	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).record, nil
}

func waitForState(ch <-chan runner.SessionState) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return stateMsg(st)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForState(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := min(max(msg.Width-6, 20), 72)
		m.progress.Width = w
		m.notes.SetWidth(w)
		m.styles.Body = m.styles.Body.Width(w)
		return m, nil

	case stateMsg:
		wasCompleted := m.state.IsCompleted
		m.state = runner.SessionState(msg)
		var cmds []tea.Cmd
		cmds = append(cmds, waitForState(m.updates))
		if m.state.IsCompleted && !wasCompleted {
			cmds = append(cmds, m.notes.Focus())
		}
		return m, tea.Batch(cmds...)

	case streamClosedMsg:
		return m, nil

	case submitResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.record = msg.record
		m.notes.Blur()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.stop()
			return m, tea.Quit
		}
		if m.state.IsCompleted {
			return m.updateReflection(msg)
		}
		return m.updatePlayback(msg)
	}

	return m, nil
}

func (m Model) updatePlayback(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch msg.String() {
	case " ", "space", "p":
		if m.state.IsPlaying {
			_, err = m.runner.Pause()
		} else {
			_, err = m.runner.Play()
		}
	case "n", "right", "enter":
		_, err = m.runner.Next()
	case "q", "esc":
		m.stop()
		return m, tea.Quit
	}
	m.err = err
	return m, nil
}

func (m Model) updateReflection(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.record != nil {
		switch msg.String() {
		case "q", "esc", "enter":
			m.stop()
			return m, tea.Quit
		}
		return m, nil
	}

	if msg.Type == tea.KeyCtrlS {
		return m.submit()
	}

	if m.notes.Focused() {
		if msg.Type == tea.KeyEsc || msg.Type == tea.KeyTab {
			m.notes.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.notes, cmd = m.notes.Update(msg)
		m.recorder.SetReflection(m.notes.Value())
		return m, cmd
	}

	switch key := msg.String(); key {
	case "1", "2", "3", "4", "5":
		rating := int(key[0] - '0')
		if err := m.recorder.SetRating(rating); err == nil {
			m.rating = rating
		}
	case "0", "backspace":
		m.recorder.ClearRating()
		m.rating = 0
	case "tab", "i":
		return m, m.notes.Focus()
	case "enter":
		return m.submit()
	case "q", "esc":
		m.stop()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	m.submitting = true
	m.err = nil
	rec := m.recorder
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		stored, err := rec.Submit(ctx)
		return submitResultMsg{record: stored, err: err}
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n\n")

	if m.state.IsCompleted {
		m.viewCompletion(&b)
	} else {
		m.viewStep(&b)
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(errorText(m.err)))
		b.WriteString("\n")
	}

	return m.styles.Frame.Render(b.String())
}

func (m Model) viewStep(b *strings.Builder) {
	st := m.state
	fmt.Fprintf(b, "%s  %s\n\n",
		m.styles.Muted.Render(fmt.Sprintf("Step %d of %d", st.CurrentStepIndex+1, st.TotalSteps)),
		m.styles.Kind.Render(string(st.Step.Type)))
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(st.Step.Title))
	b.WriteString("\n")
	b.WriteString(m.styles.Body.Render(st.Step.Content))
	b.WriteString("\n\n")

	if st.Step.Timed() {
		clock := formatRemaining(st.TimeRemaining)
		switch st.Timer {
		case runner.TimerRunning:
			b.WriteString(m.styles.Timer.Render(clock))
		case runner.TimerPaused:
			b.WriteString(m.styles.Paused.Render(clock + "  paused"))
		case runner.TimerExpired:
			b.WriteString(m.styles.Timer.Render("time"))
		default:
			b.WriteString(m.styles.Muted.Render(clock))
		}
		b.WriteString("\n\n")
	}

	b.WriteString(m.progress.ViewAs(float64(st.Progress) / 100))
	b.WriteString("\n\n")

	hint := "[n] next  [q] quit"
	if st.Step.Timed() {
		if st.IsPlaying {
			hint = "[space] pause  " + hint
		} else {
			hint = "[space] play  " + hint
		}
	}
	b.WriteString(m.styles.Muted.Render(hint))
}

func (m Model) viewCompletion(b *strings.Builder) {
	if m.record != nil {
		b.WriteString(m.styles.Success.Render("Reflection recorded."))
		b.WriteString("\n\n")
		b.WriteString(m.styles.Muted.Render("[enter] close"))
		return
	}

	b.WriteString(m.styles.Success.Render("Retreat complete."))
	b.WriteString("\n\n")
	b.WriteString("Reflection\n")
	b.WriteString(m.notes.View())
	b.WriteString("\n\n")
	b.WriteString("Rating  ")
	b.WriteString(m.stars())
	b.WriteString("\n\n")

	switch {
	case m.submitting:
		b.WriteString(m.styles.Muted.Render("Saving..."))
	case m.notes.Focused():
		b.WriteString(m.styles.Muted.Render("[esc] done typing  [ctrl+s] save"))
	default:
		b.WriteString(m.styles.Muted.Render("[1-5] rate  [0] clear  [tab] edit reflection  [enter] save  [q] skip"))
	}
}

func (m Model) stars() string {
	if m.rating == 0 {
		return m.styles.Muted.Render("not rated")
	}
	return m.styles.Star.Render(strings.Repeat("★", m.rating)) +
		m.styles.Muted.Render(strings.Repeat("☆", domain.MaxRating-m.rating))
}

func formatRemaining(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func errorText(err error) string {
	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		return "Could not save your reflection. Your notes are kept; press enter to try again."
	}
	return err.Error()
}

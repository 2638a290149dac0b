// Package tui is the terminal rendition of the predictor form.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/kartoza/soc-estimator/internal/form"
	"github.com/kartoza/soc-estimator/internal/models"
	"github.com/kartoza/soc-estimator/internal/profile"
)

// buttonFocus is the focus index of the submit button, after the fields
const buttonFocus = models.FieldCount

// submitDoneMsg is delivered when a submit command returns
type submitDoneMsg struct {
	err error
}

// ProfileChangedMsg asks the view to redraw after a profile reload
type ProfileChangedMsg struct{}

// Options configures the terminal form
type Options struct {
	// Theme is a glamour style name; empty picks one from the terminal
	Theme  string
	Width  int
	Logger *zap.Logger
}

// Model is the bubbletea model driving one PredictorForm
type Model struct {
	ctx      context.Context
	form     *form.PredictorForm
	profiles *profile.Store
	logger   *zap.Logger

	inputs  [models.FieldCount]textinput.Model
	focus   int
	pending bool
	spinner spinner.Model
	styles  Styles

	renderer *glamour.TermRenderer
	header   *headerCache
	width    int
}

// headerCache holds the rendered copy of the last profile seen
type headerCache struct {
	source *profile.Profile
	text   string
}

// New builds the terminal form around f
func New(ctx context.Context, f *form.PredictorForm, profiles *profile.Store, opts Options) Model {
	styles := DefaultStyles()
	if opts.Width == 0 {
		opts.Width = 80
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	var renderer *glamour.TermRenderer
	var err error
	if opts.Theme == "" {
		renderer, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(opts.Width),
		)
	} else {
		renderer, err = glamour.NewTermRenderer(
			glamour.WithStylePath(opts.Theme),
			glamour.WithWordWrap(opts.Width),
		)
	}
	if err != nil {
		opts.Logger.Warn("Markdown renderer unavailable", zap.Error(err))
	}

	m := Model{
		ctx:      ctx,
		form:     f,
		profiles: profiles,
		logger:   opts.Logger,
		spinner:  sp,
		styles:   styles,
		renderer: renderer,
		header:   &headerCache{},
		width:    opts.Width,
	}

	p := profiles.Current()
	values := f.Values()
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = p.Placeholder(i)
		ti.CharLimit = 64
		ti.Width = 32
		ti.SetValue(values[i])
		m.inputs[i] = ti
	}
	m.inputs[0].Focus()

	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case ProfileChangedMsg:
		p := m.profiles.Current()
		for i := range m.inputs {
			m.inputs[i].Placeholder = p.Placeholder(i)
		}
		return m, nil

	case submitDoneMsg:
		m.pending = false
		switch {
		case msg.err == nil, errors.Is(msg.err, form.ErrSuperseded), errors.Is(msg.err, form.ErrSubmitInFlight):
		case errors.Is(msg.err, form.ErrInvalidInput):
			m.logger.Debug("Submit blocked by invalid input", zap.Error(msg.err))
		default:
			m.logger.Warn("Prediction request failed", zap.Error(msg.err))
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			return m.setFocus(m.focus + 1), nil
		case "shift+tab", "up":
			return m.setFocus(m.focus - 1), nil
		case "ctrl+s":
			return m.submit()
		case "enter":
			if m.focus == buttonFocus {
				return m.submit()
			}
			return m.setFocus(m.focus + 1), nil
		}
	}

	if m.focus >= buttonFocus {
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	if v := m.inputs[m.focus].Value(); v != m.form.Values()[m.focus] {
		// focus is always a valid field index here
		_ = m.form.Update(m.focus, v)
	}
	return m, cmd
}

// busy reports whether the submit button is disabled
func (m Model) busy() bool {
	return m.pending || m.form.Status() == form.StatusSubmitting
}

func (m Model) setFocus(i int) Model {
	n := buttonFocus + 1
	i = ((i % n) + n) % n
	m.focus = i
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	return m
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy() {
		return m, nil
	}
	m.pending = true
	return m, tea.Batch(m.spinner.Tick, submitCmd(m.ctx, m.form))
}

func submitCmd(ctx context.Context, f *form.PredictorForm) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: f.Submit(ctx)}
	}
}

// View renders the form.
func (m Model) View() string {
	p := m.profiles.Current()
	var b strings.Builder

	b.WriteString(m.renderHeader(p))

	for i := range m.inputs {
		label := m.styles.Label
		if i == m.focus {
			label = m.styles.Focused
		}
		b.WriteString(label.Render(p.Features[i].Label))
		b.WriteString("\n")
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
		b.WriteString(m.styles.Hint.Render(p.FeatureLine(i)))
		b.WriteString("\n")
	}

	switch {
	case m.busy():
		b.WriteString(m.styles.ButtonBusy.Render(m.spinner.View() + " " + p.Button))
	case m.focus == buttonFocus:
		b.WriteString(m.styles.ButtonFocus.Render(p.Button))
	default:
		b.WriteString(m.styles.Button.Render(p.Button))
	}
	b.WriteString("\n")

	if v, ok := m.form.Result(); ok {
		b.WriteString(m.styles.Result.Render(p.ResultLine(v)))
		b.WriteString("\n")
	}
	if msg, ok := m.form.Err(); ok {
		b.WriteString(m.styles.Error.Render(msg))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render("tab/shift+tab move • enter next/submit • ctrl+s submit • esc quit"))
	b.WriteString("\n")
	return b.String()
}

// renderHeader renders the profile copy, re-rendering only after a reload
func (m Model) renderHeader(p *profile.Profile) string {
	if m.header.source == p {
		return m.header.text
	}
	md := "# " + p.Title + "\n\n" + p.Description + "\n\n> **Note:** " + p.Note + "\n"
	out := md
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(md); err == nil {
			out = rendered
		}
	}
	m.header.source, m.header.text = p, out
	return out
}

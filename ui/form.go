package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kleeedolinux/devsettings/gate"
	"github.com/kleeedolinux/devsettings/socket"
)

// Sender writes one line on the echo channel.
type Sender interface {
	Send(text string) error
}

// Message types delivered to the form from other goroutines.
type (
	lineMsg      struct{ line string }
	statusMsg    struct{ status string }
	submittedMsg struct{ res gate.Result }
	sendErrMsg   struct{ err error }
)

const (
	focusSSID = iota
	focusPassphrase
	focusHostname
	focusLine
	focusCount
)

var fieldOrder = [...]struct {
	field  gate.Field
	source socket.Source
}{
	{gate.FieldSSID, socket.SourceSSID},
	{gate.FieldPassphrase, socket.SourcePassphrase},
	{gate.FieldHostname, socket.SourceHostname},
}

// fieldValues is the shared copy of the three inputs the gate reads. The
// Bubble Tea model is copied on every update; this is not.
type fieldValues struct {
	mu     sync.Mutex
	values [3]string
}

func (v *fieldValues) get(i int) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.values[i]
}

func (v *fieldValues) set(i int, s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[i] = s
}

// Form is the settings form, the echo line and its log, and the feed
// status, as one Bubble Tea model.
type Form struct {
	ctx      context.Context
	gate     *gate.Gate
	triggers socket.Table
	values   *fieldValues
	disabled *atomic.Bool

	inputs []textinput.Model
	line   textinput.Model
	focus  int

	sender Sender
	silent bool
	maxLog int
	log    []string
	status string
	notice string
	failed bool
	title  string
}

type FormOption func(*formConfig)

type formConfig struct {
	initial  gate.Fields
	gateOpts []gate.Option
	sender   Sender
	silent   bool
	maxLog   int
	title    string
}

// WithInitial pre-fills the three inputs.
func WithInitial(f gate.Fields) FormOption {
	return func(c *formConfig) {
		c.initial = f
	}
}

// WithGateOptions configures the gate behind the form.
func WithGateOptions(opts ...gate.Option) FormOption {
	return func(c *formConfig) {
		c.gateOpts = append(c.gateOpts, opts...)
	}
}

// WithSender connects the echo line to a channel.
func WithSender(s Sender) FormOption {
	return func(c *formConfig) {
		c.sender = s
	}
}

// WithSilent hides submission outcomes; they are still logged.
func WithSilent(silent bool) FormOption {
	return func(c *formConfig) {
		c.silent = silent
	}
}

// WithLogLines bounds how many echoed lines are kept on screen.
func WithLogLines(n int) FormOption {
	return func(c *formConfig) {
		if n > 0 {
			c.maxLog = n
		}
	}
}

func WithTitle(title string) FormOption {
	return func(c *formConfig) {
		c.title = title
	}
}

func NewForm(ctx context.Context, opts ...FormOption) (Form, error) {
	cfg := formConfig{maxLog: 10, title: "Device settings"}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := Form{
		ctx:      ctx,
		values:   &fieldValues{},
		disabled: &atomic.Bool{},
		sender:   cfg.sender,
		silent:   cfg.silent,
		maxLog:   cfg.maxLog,
		title:    cfg.title,
	}

	for i, f := range fieldOrder {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 128
		in.Placeholder = f.field.Hint()
		in.SetValue(cfg.initial.Value(f.field))
		if f.field == gate.FieldPassphrase {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		m.values.set(i, in.Value())
		m.inputs = append(m.inputs, in)
	}
	m.inputs[focusSSID].Focus()

	m.line = textinput.New()
	m.line.Prompt = "> "
	m.line.Placeholder = "text to echo"
	m.line.CharLimit = 512

	values := m.values
	inputs := gate.Inputs{
		SSID:       gate.InputFunc(func() string { return values.get(focusSSID) }),
		Passphrase: gate.InputFunc(func() string { return values.get(focusPassphrase) }),
		Hostname:   gate.InputFunc(func() string { return values.get(focusHostname) }),
	}
	disabled := m.disabled
	g, err := gate.New(inputs, gate.ControlFunc(func(d bool) { disabled.Store(d) }), cfg.gateOpts...)
	if err != nil {
		return Form{}, err
	}
	g.Bind()

	m.gate = g
	m.triggers = g.Bindings()
	return m, nil
}

// Gate returns the gate bound to the form's inputs.
func (m Form) Gate() *gate.Gate {
	return m.gate
}

// SubmitEnabled reports the submit button's state.
func (m Form) SubmitEnabled() bool {
	return !m.disabled.Load()
}

// SendEnabled reports the echo button's state: enabled iff the line is not
// empty.
func (m Form) SendEnabled() bool {
	return m.line.Value() != ""
}

func (m Form) Log() []string {
	return append([]string(nil), m.log...)
}

func (m Form) Status() string {
	return m.status
}

func (m Form) Notice() string {
	return m.notice
}

func (m Form) Init() tea.Cmd {
	return textinput.Blink
}

func (m Form) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab, tea.KeyDown:
			return m.moveFocus(1), nil
		case tea.KeyShiftTab, tea.KeyUp:
			return m.moveFocus(-1), nil
		case tea.KeyEnter:
			if m.focus == focusLine {
				return m.send()
			}
			return m.submit()
		}
		return m.updateFocused(msg)

	case lineMsg:
		m.log = append(m.log, msg.line)
		if len(m.log) > m.maxLog {
			m.log = m.log[len(m.log)-m.maxLog:]
		}
		return m, nil

	case statusMsg:
		m.status = msg.status
		return m, nil

	case submittedMsg:
		if !m.silent {
			m.notice, m.failed = describeResult(msg.res)
		}
		return m, nil

	case sendErrMsg:
		m.notice, m.failed = fmt.Sprintf("Send failed: %v", msg.err), true
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m Form) moveFocus(delta int) Form {
	m.blurAll()
	m.focus = (m.focus + delta + focusCount) % focusCount
	if m.focus == focusLine {
		m.line.Focus()
	} else {
		m.inputs[m.focus].Focus()
	}
	return m
}

func (m *Form) blurAll() {
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
	m.line.Blur()
}

func (m Form) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == focusLine {
		m.line, cmd = m.line.Update(msg)
		return m, cmd
	}

	before := m.inputs[m.focus].Value()
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	if after := m.inputs[m.focus].Value(); after != before {
		m.values.set(m.focus, after)
		m.triggers.Dispatch(socket.Message{
			Source: fieldOrder[m.focus].source,
			Event:  socket.EventInput,
			Data:   after,
		})
	}
	return m, cmd
}

func (m Form) submit() (tea.Model, tea.Cmd) {
	if m.disabled.Load() {
		return m, nil
	}
	results := m.gate.Submit(m.ctx)
	return m, func() tea.Msg {
		return submittedMsg{res: <-results}
	}
}

func (m Form) send() (tea.Model, tea.Cmd) {
	text := m.line.Value()
	if text == "" || m.sender == nil {
		return m, nil
	}
	m.line.SetValue("")

	sender := m.sender
	return m, func() tea.Msg {
		if err := sender.Send(text); err != nil {
			return sendErrMsg{err: err}
		}
		return nil
	}
}

func describeResult(res gate.Result) (string, bool) {
	switch {
	case res.Err != nil:
		return fmt.Sprintf("Submission failed: %v", res.Err), true
	case res.OK():
		return fmt.Sprintf("Saved; device will rejoin as %s.local", res.Fields.Hostname), false
	default:
		return fmt.Sprintf("Device answered %d", res.StatusCode), true
	}
}

func (m Form) View() string {
	var rows []string
	rows = append(rows, titleStyle.Render(m.title))

	for i, f := range fieldOrder {
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render(f.field.Label()),
			m.inputs[i].View(),
		)
		rows = append(rows, row)
		if v := m.values.get(i); v != "" && !gate.Check(f.field, v) {
			rows = append(rows, hintStyle.Render(f.field.Hint()))
		}
	}

	submit := disabledButtonStyle.Render("Save")
	if m.SubmitEnabled() {
		submit = buttonStyle.Render("Save")
	}
	rows = append(rows, "", submit)

	if m.notice != "" {
		style := okStyle
		if m.failed {
			style = failStyle
		}
		rows = append(rows, style.Render(m.notice))
	}

	send := disabledButtonStyle.Render("Send")
	if m.SendEnabled() {
		send = buttonStyle.Render("Send")
	}
	rows = append(rows, "", lipgloss.JoinHorizontal(lipgloss.Center, m.line.View(), " ", send))

	logText := strings.Join(m.log, "\n")
	if logText == "" {
		logText = statusStyle.Render("no messages yet")
	}
	rows = append(rows, logStyle.Render(logText))

	if m.status != "" {
		rows = append(rows, statusStyle.Render(m.status))
	}
	rows = append(rows, statusStyle.Render("tab: next field  enter: save/send  esc: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// Output forwards the client's display calls to a running program. It is
// safe to use from any goroutine.
type Output struct {
	send func(tea.Msg)
}

// NewOutput wraps a delivery function, usually (*tea.Program).Send.
func NewOutput(send func(tea.Msg)) *Output {
	return &Output{send: send}
}

func (o *Output) AppendLine(line string) {
	o.send(lineMsg{line: line})
}

func (o *Output) SetStatus(status string) {
	o.send(statusMsg{status: status})
}

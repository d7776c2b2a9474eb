package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/kleeedolinux/devsettings/gate"
)

type stubPoster struct {
	mu    sync.Mutex
	posts []gate.Fields
}

func (p *stubPoster) Post(_ context.Context, f gate.Fields) gate.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, f)
	return gate.Result{Fields: f.Trimmed(), StatusCode: 200}
}

type stubSender struct {
	sent []string
	err  error
}

func (s *stubSender) Send(text string) error {
	s.sent = append(s.sent, text)
	return s.err
}

func update(t *testing.T, m Form, msg tea.Msg) (Form, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	form, ok := next.(Form)
	assert.Assert(t, ok, "unexpected model %T", next)
	return form, cmd
}

func typeText(t *testing.T, m Form, s string) Form {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func press(t *testing.T, m Form, key tea.KeyType) (Form, tea.Cmd) {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: key})
}

func TestFormEnablesSubmitWhenValid(t *testing.T) {
	poster := &stubPoster{}
	m, err := NewForm(context.Background(), WithGateOptions(gate.WithSubmitter(poster)))
	assert.NilError(t, err)
	assert.Check(t, !m.SubmitEnabled())

	m = typeText(t, m, "Home Net-1")
	assert.Check(t, !m.SubmitEnabled())

	m, _ = press(t, m, tea.KeyTab)
	m = typeText(t, m, "longenough1")
	assert.Check(t, !m.SubmitEnabled())

	m, _ = press(t, m, tea.KeyTab)
	m = typeText(t, m, "router-1")
	assert.Check(t, m.SubmitEnabled())
	assert.Check(t, m.Gate().Enabled())

	m, cmd := press(t, m, tea.KeyEnter)
	assert.Assert(t, cmd != nil)
	m, _ = update(t, m, cmd())

	assert.Check(t, is.Len(poster.posts, 1))
	assert.Check(t, is.DeepEqual(poster.posts[0], gate.Fields{SSID: "Home Net-1", Passphrase: "longenough1", Hostname: "router-1"}))
	assert.Check(t, strings.Contains(m.Notice(), "router-1.local"))
	assert.Check(t, !strings.Contains(m.View(), "longenough1"))
}

func TestFormDisablesSubmitOnInvalidEdit(t *testing.T) {
	m, err := NewForm(context.Background(), WithInitial(gate.Fields{
		SSID: "Home Net-1", Passphrase: "longenough1", Hostname: "router-1",
	}))
	assert.NilError(t, err)
	assert.Check(t, m.SubmitEnabled())

	m = typeText(t, m, ";")
	assert.Check(t, !m.SubmitEnabled())
	assert.Check(t, strings.Contains(m.View(), gate.FieldSSID.Hint()))

	m, _ = press(t, m, tea.KeyBackspace)
	assert.Check(t, m.SubmitEnabled())
}

func TestFormEnterWhileDisabledDoesNothing(t *testing.T) {
	poster := &stubPoster{}
	m, err := NewForm(context.Background(), WithGateOptions(gate.WithSubmitter(poster)))
	assert.NilError(t, err)

	_, cmd := press(t, m, tea.KeyEnter)
	assert.Check(t, cmd == nil)
	assert.Check(t, is.Len(poster.posts, 0))
}

func TestFormSendButton(t *testing.T) {
	sender := &stubSender{}
	m, err := NewForm(context.Background(), WithSender(sender))
	assert.NilError(t, err)

	for i := 0; i < 3; i++ {
		m, _ = press(t, m, tea.KeyTab)
	}
	assert.Check(t, !m.SendEnabled())
	_, cmd := press(t, m, tea.KeyEnter)
	assert.Check(t, cmd == nil)

	m = typeText(t, m, "hello")
	assert.Check(t, m.SendEnabled())

	m, cmd = press(t, m, tea.KeyEnter)
	assert.Assert(t, cmd != nil)
	assert.Check(t, !m.SendEnabled())
	assert.Check(t, cmd() == nil)
	assert.Check(t, is.DeepEqual(sender.sent, []string{"hello"}))
}

func TestFormSendFailureIsShown(t *testing.T) {
	sender := &stubSender{err: errors.New("connection closed")}
	m, err := NewForm(context.Background(), WithSender(sender))
	assert.NilError(t, err)

	m, _ = press(t, m, tea.KeyShiftTab)
	m = typeText(t, m, "hello")
	m, cmd := press(t, m, tea.KeyEnter)
	assert.Assert(t, cmd != nil)
	m, _ = update(t, m, cmd())
	assert.Check(t, strings.Contains(m.Notice(), "connection closed"))
}

func TestFormOutput(t *testing.T) {
	m, err := NewForm(context.Background(), WithLogLines(2))
	assert.NilError(t, err)

	var msgs []tea.Msg
	out := NewOutput(func(msg tea.Msg) { msgs = append(msgs, msg) })
	out.AppendLine("one")
	out.AppendLine("two")
	out.AppendLine("three")
	out.SetStatus("Events Closed")

	for _, msg := range msgs {
		m, _ = update(t, m, msg)
	}
	assert.Check(t, is.DeepEqual(m.Log(), []string{"two", "three"}))
	assert.Check(t, is.Equal(m.Status(), "Events Closed"))
	assert.Check(t, strings.Contains(m.View(), "Events Closed"))
}

func TestFormSilentHidesOutcome(t *testing.T) {
	m, err := NewForm(context.Background(), WithSilent(true))
	assert.NilError(t, err)

	m, _ = update(t, m, submittedMsg{res: gate.Result{Err: errors.New("unreachable")}})
	assert.Check(t, is.Equal(m.Notice(), ""))
}

func TestFormQuits(t *testing.T) {
	m, err := NewForm(context.Background())
	assert.NilError(t, err)

	_, cmd := press(t, m, tea.KeyEsc)
	assert.Assert(t, cmd != nil)
	_, ok := cmd().(tea.QuitMsg)
	assert.Check(t, ok)
}

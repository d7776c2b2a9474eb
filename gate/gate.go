package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/containerd/log"

	"github.com/kleeedolinux/devsettings/debug"
	"github.com/kleeedolinux/devsettings/socket"
)

// Input is a text source the gate reads on every change.
type Input interface {
	Value() string
}

// InputFunc adapts a function to Input.
type InputFunc func() string

func (f InputFunc) Value() string { return f() }

// Control is the submit action the gate enables and disables.
type Control interface {
	SetDisabled(disabled bool)
}

// ControlFunc adapts a function to Control.
type ControlFunc func(disabled bool)

func (f ControlFunc) SetDisabled(disabled bool) { f(disabled) }

// Inputs are the three sources behind the form.
type Inputs struct {
	SSID       Input
	Passphrase Input
	Hostname   Input
}

// Gate keeps a submit control in step with the form's validity and posts
// the form when asked. Control implementations must not call back into the
// gate.
type Gate struct {
	mu        sync.Mutex
	inputs    Inputs
	control   Control
	submitter Poster
	guard     bool

	inFlight int
	disabled bool
	applied  bool
	closed   bool
	pending  sync.WaitGroup
}

type Option func(*Gate)

// WithSubmitter sets where valid forms are posted.
func WithSubmitter(p Poster) Option {
	return func(g *Gate) {
		g.submitter = p
	}
}

// WithInFlightGuard keeps the control disabled while a submission runs and
// refuses overlapping submissions.
func WithInFlightGuard() Option {
	return func(g *Gate) {
		g.guard = true
	}
}

// New builds a gate over its three inputs and one control. Call Bind
// before the first change.
func New(inputs Inputs, control Control, opts ...Option) (*Gate, error) {
	if inputs.SSID == nil || inputs.Passphrase == nil || inputs.Hostname == nil {
		return nil, errors.New("gate: all three inputs are required")
	}
	if control == nil {
		return nil, errors.New("gate: submit control is required")
	}

	g := &Gate{
		inputs:  inputs,
		control: control,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Bind sets the control's initial state and reports whether submit is
// enabled.
func (g *Gate) Bind() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.refreshLocked()
}

// Changed re-validates after an input change and reports whether submit is
// enabled. Once closed, the gate ignores changes.
func (g *Gate) Changed(field Field) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return !g.disabled
	}
	debug.Printf("Gate: %s changed", field)
	return g.refreshLocked()
}

// Bindings exposes the input triggers as an event table.
func (g *Gate) Bindings() socket.Table {
	changed := func(field Field) socket.Handler {
		return func(socket.Message) { g.Changed(field) }
	}
	return socket.Table{
		{Source: socket.SourceSSID, Event: socket.EventInput, Handler: changed(FieldSSID)},
		{Source: socket.SourcePassphrase, Event: socket.EventInput, Handler: changed(FieldPassphrase)},
		{Source: socket.SourceHostname, Event: socket.EventInput, Handler: changed(FieldHostname)},
	}
}

// Enabled reports the last state pushed to the control.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.applied && !g.disabled
}

// Fields reads the current raw input values.
func (g *Gate) Fields() Fields {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.readLocked()
}

func (g *Gate) readLocked() Fields {
	return Fields{
		SSID:       g.inputs.SSID.Value(),
		Passphrase: g.inputs.Passphrase.Value(),
		Hostname:   g.inputs.Hostname.Value(),
	}
}

func (g *Gate) refreshLocked() bool {
	disabled := !Validate(g.readLocked()) || (g.guard && g.inFlight > 0)
	if !g.applied || disabled != g.disabled {
		g.control.SetDisabled(disabled)
		g.disabled = disabled
		g.applied = true
	}
	return !disabled
}

// Submit re-validates and, when the form passes, posts it in the
// background. The returned channel yields exactly one Result.
func (g *Gate) Submit(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	finish := func(res Result) <-chan Result {
		out <- res
		close(out)
		return out
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return finish(Result{Err: ErrClosed})
	}
	fields := g.readLocked()
	if !Validate(fields) {
		g.mu.Unlock()
		log.G(ctx).WithField("issues", Issues(fields)).Warn("settings not submitted: form is invalid")
		return finish(Result{Fields: fields, Err: ErrInvalidFields})
	}
	if g.submitter == nil {
		g.mu.Unlock()
		return finish(Result{Fields: fields, Err: ErrNoSubmitter})
	}
	if g.guard && g.inFlight > 0 {
		g.mu.Unlock()
		log.G(ctx).Warn("settings not submitted: previous submission still running")
		return finish(Result{Fields: fields, Err: ErrSubmitInFlight})
	}
	g.inFlight++
	g.refreshLocked()
	g.pending.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.pending.Done()

		res := g.submitter.Post(ctx, fields)

		g.mu.Lock()
		g.inFlight--
		if !g.closed {
			g.refreshLocked()
		}
		g.mu.Unlock()

		out <- res
		close(out)
	}()

	return out
}

// Wait blocks until every submission started so far has completed.
func (g *Gate) Wait() {
	g.pending.Wait()
}

// Close detaches the gate from its inputs. Running submissions finish but
// no longer touch the control.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
}

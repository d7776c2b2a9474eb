package gate

import (
	"context"
	"sync"
	"testing"

	"github.com/containerd/errdefs"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"pgregory.net/rapid"

	"github.com/kleeedolinux/devsettings/socket"
)

type textInput struct {
	mu    sync.Mutex
	value string
}

func (i *textInput) Value() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.value
}

func (i *textInput) Set(v string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.value = v
}

type recordingControl struct {
	mu    sync.Mutex
	calls []bool
}

func (c *recordingControl) SetDisabled(disabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, disabled)
}

func (c *recordingControl) Calls() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.calls...)
}

func (c *recordingControl) Disabled() bool {
	calls := c.Calls()
	return len(calls) > 0 && calls[len(calls)-1]
}

type form struct {
	ssid, psw, hostname *textInput
	control             *recordingControl
}

func newForm(t *testing.T, f Fields, opts ...Option) (*Gate, *form) {
	t.Helper()
	fm := &form{
		ssid:     &textInput{value: f.SSID},
		psw:      &textInput{value: f.Passphrase},
		hostname: &textInput{value: f.Hostname},
		control:  &recordingControl{},
	}
	g, err := New(Inputs{SSID: fm.ssid, Passphrase: fm.psw, Hostname: fm.hostname}, fm.control, opts...)
	assert.NilError(t, err)
	return g, fm
}

type countingPoster struct {
	mu    sync.Mutex
	posts []Fields
}

func (p *countingPoster) Post(_ context.Context, f Fields) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, f)
	return Result{Fields: f, StatusCode: 200}
}

func (p *countingPoster) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

// blockingPoster holds every Post until release is closed.
type blockingPoster struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPoster) Post(_ context.Context, f Fields) Result {
	p.started <- struct{}{}
	<-p.release
	return Result{Fields: f, StatusCode: 200}
}

func TestNewRequiresInputsAndControl(t *testing.T) {
	_, err := New(Inputs{SSID: InputFunc(func() string { return "" })}, ControlFunc(func(bool) {}))
	assert.Check(t, err != nil)

	in := InputFunc(func() string { return "" })
	_, err = New(Inputs{SSID: in, Passphrase: in, Hostname: in}, nil)
	assert.Check(t, err != nil)
}

func TestBindSetsInitialState(t *testing.T) {
	g, fm := newForm(t, Fields{})
	assert.Check(t, !g.Bind())
	assert.Check(t, is.DeepEqual(fm.control.Calls(), []bool{true}))
	assert.Check(t, !g.Enabled())

	g, fm = newForm(t, validFields)
	assert.Check(t, g.Bind())
	assert.Check(t, is.DeepEqual(fm.control.Calls(), []bool{false}))
	assert.Check(t, g.Enabled())
}

func TestChangedFollowsValidity(t *testing.T) {
	g, fm := newForm(t, Fields{Passphrase: "longenough1", Hostname: "router-1"})
	g.Bind()

	fm.ssid.Set("Home Net-1")
	assert.Check(t, g.Changed(FieldSSID))
	assert.Check(t, !fm.control.Disabled())

	fm.hostname.Set("this-hostname-is-too-long")
	assert.Check(t, !g.Changed(FieldHostname))
	assert.Check(t, fm.control.Disabled())

	fm.hostname.Set("router-1")
	fm.psw.Set("short")
	assert.Check(t, !g.Changed(FieldPassphrase))
	assert.Check(t, is.DeepEqual(fm.control.Calls(), []bool{true, false, true}))
}

func TestChangedIsIdempotent(t *testing.T) {
	g, fm := newForm(t, validFields)
	g.Bind()
	for i := 0; i < 5; i++ {
		assert.Check(t, g.Changed(FieldSSID))
	}
	assert.Check(t, is.DeepEqual(fm.control.Calls(), []bool{false}))
}

func TestBindingsDriveTheGate(t *testing.T) {
	g, fm := newForm(t, Fields{SSID: "Home Net-1", Passphrase: "longenough1"})
	g.Bind()
	table := g.Bindings()

	assert.Check(t, is.Len(table.Lookup(socket.SourceHostname, socket.EventInput), 1))

	fm.hostname.Set("router-1")
	n := table.Dispatch(socket.Message{Source: socket.SourceHostname, Event: socket.EventInput})
	assert.Check(t, is.Equal(n, 1))
	assert.Check(t, g.Enabled())
}

func TestCloseIgnoresChanges(t *testing.T) {
	g, fm := newForm(t, validFields)
	g.Bind()
	g.Close()

	fm.ssid.Set("")
	assert.Check(t, g.Changed(FieldSSID))
	assert.Check(t, is.DeepEqual(fm.control.Calls(), []bool{false}))

	res := <-g.Submit(context.Background())
	assert.Check(t, is.ErrorIs(res.Err, ErrClosed))
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	g, _ := newForm(t, validFields)
	g.Bind()
	res := <-g.Submit(context.Background())
	assert.Check(t, errdefs.IsFailedPrecondition(res.Err))
}

func TestSubmitNeverPostsInvalidForms(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := Fields{
			SSID:       fieldString().Draw(rt, "ssid"),
			Passphrase: fieldString().Draw(rt, "psw"),
			Hostname:   fieldString().Draw(rt, "hostname"),
		}
		poster := &countingPoster{}
		g, _ := newForm(t, f, WithSubmitter(poster))
		g.Bind()

		res := <-g.Submit(context.Background())
		g.Wait()

		if Validate(f) {
			if poster.Count() != 1 || res.Err != nil {
				rt.Fatalf("valid form %+v: posts=%d err=%v", f, poster.Count(), res.Err)
			}
			return
		}
		if poster.Count() != 0 {
			rt.Fatalf("invalid form %+v was posted", f)
		}
		if !errdefs.IsInvalidArgument(res.Err) {
			rt.Fatalf("invalid form %+v: got err %v", f, res.Err)
		}
	})
}

func TestInFlightGuard(t *testing.T) {
	poster := &blockingPoster{started: make(chan struct{}, 1), release: make(chan struct{})}
	g, fm := newForm(t, validFields, WithSubmitter(poster), WithInFlightGuard())
	g.Bind()

	first := g.Submit(context.Background())
	<-poster.started
	assert.Check(t, fm.control.Disabled())
	assert.Check(t, !g.Changed(FieldSSID))

	second := <-g.Submit(context.Background())
	assert.Check(t, errdefs.IsConflict(second.Err))

	close(poster.release)
	res := <-first
	assert.NilError(t, res.Err)
	assert.Check(t, g.Enabled())
	assert.Check(t, is.DeepEqual(fm.control.Calls(), []bool{false, true, false}))
}

func TestWithoutGuardSubmissionsOverlap(t *testing.T) {
	poster := &blockingPoster{started: make(chan struct{}, 2), release: make(chan struct{})}
	g, fm := newForm(t, validFields, WithSubmitter(poster))
	g.Bind()

	first := g.Submit(context.Background())
	second := g.Submit(context.Background())
	<-poster.started
	<-poster.started
	assert.Check(t, !fm.control.Disabled())

	close(poster.release)
	assert.NilError(t, (<-first).Err)
	assert.NilError(t, (<-second).Err)
	assert.Check(t, is.DeepEqual(fm.control.Calls(), []bool{false}))
}

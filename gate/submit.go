package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

var (
	// ErrInvalidFields is returned instead of posting a form that does not
	// validate.
	ErrInvalidFields  = fmt.Errorf("gate: invalid fields: %w", errdefs.ErrInvalidArgument)
	ErrSubmitInFlight = fmt.Errorf("gate: submission in flight: %w", errdefs.ErrConflict)
	ErrNoSubmitter    = fmt.Errorf("gate: no submitter configured: %w", errdefs.ErrFailedPrecondition)
	ErrClosed         = errors.New("gate: closed")
)

const maxResponseBody = 64 << 10

// Result is the outcome of one submission. A non-2xx status is recorded,
// not treated as an error.
type Result struct {
	Fields     Fields
	StatusCode int
	Body       string
	Err        error
}

// OK reports a request that completed with a 2xx status.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Poster delivers a validated form.
type Poster interface {
	Post(ctx context.Context, f Fields) Result
}

// Submitter posts the form as JSON to the device's settings endpoint.
type Submitter struct {
	client  Doer
	url     string
	timeout time.Duration
}

type SubmitOption func(*Submitter)

func WithClient(client Doer) SubmitOption {
	return func(s *Submitter) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout bounds a single request. Zero leaves it to ctx.
func WithTimeout(d time.Duration) SubmitOption {
	return func(s *Submitter) {
		s.timeout = d
	}
}

func NewSubmitter(settingsURL string, opts ...SubmitOption) *Submitter {
	s := &Submitter{
		client:  http.DefaultClient,
		url:     settingsURL,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL is the endpoint the form is posted to.
func (s *Submitter) URL() string {
	return s.url
}

// Post validates f and, if it passes, sends exactly one POST. Nothing is
// retried; both outcomes are logged and returned.
func (s *Submitter) Post(ctx context.Context, f Fields) Result {
	logger := log.G(ctx).WithField("url", s.url)

	if !Validate(f) {
		logger.WithField("issues", Issues(f)).Warn("settings not submitted: form is invalid")
		return Result{Fields: f, Err: ErrInvalidFields}
	}

	sent := f.Trimmed()
	res := Result{Fields: sent}

	body, err := json.Marshal(sent)
	if err != nil {
		res.Err = fmt.Errorf("gate: encode settings: %w", err)
		logger.WithError(res.Err).Warn("settings submission failed")
		return res
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("gate: build request: %v: %w", err, errdefs.ErrInvalidArgument)
		logger.WithError(res.Err).Warn("settings submission failed")
		return res
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("gate: post %s: %w: %w", s.url, errdefs.ErrUnavailable, err)
		logger.WithError(err).Warn("settings submission failed")
		return res
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res.StatusCode = resp.StatusCode
	res.Body = string(raw)
	if err != nil {
		res.Err = fmt.Errorf("gate: read response: %w: %w", errdefs.ErrUnavailable, err)
		logger.WithError(err).Warn("settings submission failed")
		return res
	}

	logger.WithFields(log.Fields{
		"status":   resp.StatusCode,
		"ssid":     sent.SSID,
		"hostname": sent.Hostname,
		"response": res.Body,
	}).Info("settings submitted")
	if res.OK() {
		logger.Infof("device will announce itself as %s.local", sent.Hostname)
	}
	return res
}

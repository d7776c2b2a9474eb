package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/kleeedolinux/devsettings/gate"
)

var (
	// ErrAborted signals the user interrupted a prompt (e.g., Ctrl+C).
	ErrAborted = errors.New("ui: aborted")
	// ErrDeclined is returned when the user answers no to the final
	// confirmation.
	ErrDeclined = errors.New("ui: submission declined")
)

// InputConfig configures a single line prompt.
type InputConfig struct {
	Message   string
	Default   string
	Help      string
	Validator func(string) error
}

// ConfirmConfig configures a yes/no prompt.
type ConfirmConfig struct {
	Message string
	Default bool
	Help    string
}

// PromptDriver abstracts the terminal so prompt flows can be tested
// without one.
type PromptDriver interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	Password(ctx context.Context, cfg InputConfig) (string, error)
	Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error)
	Info(ctx context.Context, msg string) error
}

type surveyDriver struct {
	out io.Writer
}

func (d *surveyDriver) Input(ctx context.Context, cfg InputConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	prompt := &survey.Input{
		Message: cfg.Message,
		Help:    cfg.Help,
		Default: cfg.Default,
	}
	if err := survey.AskOne(prompt, &out, askOpts(cfg)...); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (d *surveyDriver) Password(ctx context.Context, cfg InputConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	prompt := &survey.Password{
		Message: cfg.Message,
		Help:    cfg.Help,
	}
	if err := survey.AskOne(prompt, &out, askOpts(cfg)...); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (d *surveyDriver) Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var out bool
	prompt := &survey.Confirm{
		Message: cfg.Message,
		Help:    cfg.Help,
		Default: cfg.Default,
	}
	if err := survey.AskOne(prompt, &out); err != nil {
		return false, translateSurveyErr(err)
	}
	return out, nil
}

func (d *surveyDriver) Info(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.out, msg)
	return err
}

func askOpts(cfg InputConfig) []survey.AskOpt {
	if cfg.Validator == nil {
		return nil
	}
	return []survey.AskOpt{survey.WithValidator(surveyValidator(cfg.Validator))}
}

// surveyValidator adapts a string check to survey's untyped validator.
func surveyValidator(fn func(string) error) survey.Validator {
	return func(ans interface{}) error {
		s, ok := ans.(string)
		if !ok {
			return fmt.Errorf("ui: cannot validate %T", ans)
		}
		return fn(s)
	}
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

// FieldValidator rejects values the given form field does not accept.
func FieldValidator(field gate.Field) func(string) error {
	return func(v string) error {
		if gate.Check(field, v) {
			return nil
		}
		return fmt.Errorf("%s: %s", field.Label(), field.Hint())
	}
}

// Prompt collects the settings form one line at a time.
type Prompt struct {
	driver  PromptDriver
	confirm bool
}

type PromptOption func(*Prompt)

// WithPromptDriver overrides the driver used to ask questions.
func WithPromptDriver(driver PromptDriver) PromptOption {
	return func(p *Prompt) {
		if driver != nil {
			p.driver = driver
		}
	}
}

// WithConfirm asks for a final yes/no before returning the fields.
func WithConfirm(confirm bool) PromptOption {
	return func(p *Prompt) {
		p.confirm = confirm
	}
}

func NewPrompt(opts ...PromptOption) *Prompt {
	p := &Prompt{
		driver:  &surveyDriver{out: os.Stdout},
		confirm: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ask prompts for each field, starting from defaults. Every answer passes
// its field's check before the next question is asked.
func (p *Prompt) Ask(ctx context.Context, defaults gate.Fields) (gate.Fields, error) {
	var (
		f   gate.Fields
		err error
	)

	f.SSID, err = p.driver.Input(ctx, InputConfig{
		Message:   gate.FieldSSID.Label(),
		Default:   defaults.SSID,
		Help:      gate.FieldSSID.Hint(),
		Validator: FieldValidator(gate.FieldSSID),
	})
	if err != nil {
		return gate.Fields{}, err
	}

	f.Passphrase, err = p.driver.Password(ctx, InputConfig{
		Message:   gate.FieldPassphrase.Label(),
		Help:      gate.FieldPassphrase.Hint(),
		Validator: FieldValidator(gate.FieldPassphrase),
	})
	if err != nil {
		return gate.Fields{}, err
	}

	f.Hostname, err = p.driver.Input(ctx, InputConfig{
		Message:   gate.FieldHostname.Label(),
		Default:   defaults.Hostname,
		Help:      gate.FieldHostname.Hint(),
		Validator: FieldValidator(gate.FieldHostname),
	})
	if err != nil {
		return gate.Fields{}, err
	}

	if p.confirm {
		ok, err := p.driver.Confirm(ctx, ConfirmConfig{
			Message: fmt.Sprintf("Send settings for %q to the device?", gate.Trim(f.SSID)),
			Default: true,
		})
		if err != nil {
			return gate.Fields{}, err
		}
		if !ok {
			return gate.Fields{}, ErrDeclined
		}
	}

	return f, nil
}

// Report prints the outcome of a submission through the driver.
func (p *Prompt) Report(ctx context.Context, res gate.Result) error {
	switch {
	case res.Err != nil:
		return p.driver.Info(ctx, fmt.Sprintf("Submission failed: %v", res.Err))
	case res.OK():
		return p.driver.Info(ctx, fmt.Sprintf("Saved. The device will rejoin as %s.local", res.Fields.Hostname))
	default:
		return p.driver.Info(ctx, fmt.Sprintf("Device answered %d: %s", res.StatusCode, res.Body))
	}
}

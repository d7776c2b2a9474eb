package main

import (
	"errors"
	"fmt"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/kleeedolinux/devsettings/gate"
	"github.com/kleeedolinux/devsettings/ui"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var fields gate.Fields

	cmd := &cobra.Command{
		Use:   "validate [OPTIONS]",
		Short: "Check settings against the device's field rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, fields)
		},
	}
	addFieldFlags(cmd.Flags(), &fields)
	return cmd
}

func runValidate(cmd *cobra.Command, fields gate.Fields) error {
	if issues := gate.Issues(fields); len(issues) > 0 {
		printIssues(cmd.OutOrStdout(), issues)
		return StatusError{StatusCode: 1}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func newSubmitCommand(opts *rootOptions) *cobra.Command {
	var fields gate.Fields

	cmd := &cobra.Command{
		Use:   "submit [OPTIONS]",
		Short: "Validate settings and post them to the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts, fields)
		},
	}
	addFieldFlags(cmd.Flags(), &fields)
	return cmd
}

func runSubmit(cmd *cobra.Command, opts *rootOptions, fields gate.Fields) error {
	if issues := gate.Issues(fields); len(issues) > 0 {
		printIssues(cmd.ErrOrStderr(), issues)
		return StatusError{StatusCode: 1}
	}

	res := opts.submitter().Post(cmd.Context(), fields)
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", res.StatusCode, res.Body)
	return nil
}

func newPromptCommand(opts *rootOptions) *cobra.Command {
	var (
		defaults gate.Fields
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "prompt [OPTIONS]",
		Short: "Ask for each setting interactively, then post them to the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, opts, ui.NewPrompt(ui.WithConfirm(!yes)), defaults)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&defaults.SSID, "ssid", "", "Default network name")
	flags.StringVar(&defaults.Hostname, "hostname", "", "Default hostname")
	flags.BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func runPrompt(cmd *cobra.Command, opts *rootOptions, prompt *ui.Prompt, defaults gate.Fields) error {
	ctx := cmd.Context()

	fields, err := prompt.Ask(ctx, defaults)
	if errors.Is(err, ui.ErrDeclined) {
		log.G(ctx).Info("settings not submitted")
		return nil
	}
	if err != nil {
		return err
	}

	res := opts.submitter().Post(ctx, fields)
	if err := prompt.Report(ctx, res); err != nil {
		return err
	}
	if res.Err != nil {
		return StatusError{StatusCode: 1}
	}
	return nil
}

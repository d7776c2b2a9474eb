package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/containerd/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kleeedolinux/devsettings/debug"
	"github.com/kleeedolinux/devsettings/gate"
	"github.com/kleeedolinux/devsettings/socket"
	"github.com/kleeedolinux/devsettings/ui"
)

// runClient dispatches c's traffic until ctx ends or both channels are
// done. Cancellation is a normal way to stop.
func runClient(ctx context.Context, c *socket.Client) error {
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type uiOptions struct {
	initial gate.Fields
	logFile string
}

func newUICommand(opts *rootOptions) *cobra.Command {
	var uiOpts uiOptions

	cmd := &cobra.Command{
		Use:   "ui [OPTIONS]",
		Short: "Open the settings form with the echo channel and event feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd, opts, uiOpts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&uiOpts.initial.SSID, "ssid", "", "Initial network name")
	flags.StringVar(&uiOpts.initial.Hostname, "hostname", "", "Initial hostname")
	flags.StringVar(&uiOpts.logFile, "log-file", "", "Write logs to this file while the form is open")
	return cmd
}

func runUI(cmd *cobra.Command, opts *rootOptions, uiOpts uiOptions) error {
	// The form owns the terminal; logs go elsewhere until it closes.
	logOut := io.Discard
	if uiOpts.logFile != "" {
		f, err := os.OpenFile(uiOpts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	debug.SetOutput(logOut)
	defer debug.SetOutput(cmd.ErrOrStderr())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	gateOpts := []gate.Option{gate.WithSubmitter(opts.submitter())}
	if opts.cfg.Submit.GuardInFlight {
		gateOpts = append(gateOpts, gate.WithInFlightGuard())
	}

	client := opts.client(true, true)
	defer client.Close()

	form, err := ui.NewForm(ctx,
		ui.WithInitial(uiOpts.initial),
		ui.WithGateOptions(gateOpts...),
		ui.WithSender(client),
		ui.WithSilent(opts.cfg.Submit.Silent),
		ui.WithTitle("Device settings: "+opts.eps.Page.Host),
	)
	if err != nil {
		return err
	}
	defer form.Gate().Close()

	prog := tea.NewProgram(form, tea.WithContext(ctx), tea.WithAltScreen())
	client.Handle(socket.Wiring(ctx, client, ui.NewOutput(prog.Send))...)

	if err := client.Connect(ctx); err != nil {
		log.G(ctx).WithError(err).Warn("device channels unavailable")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runClient(gctx, client)
	})
	g.Go(func() error {
		defer cancel()
		if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	})
	err = g.Wait()

	form.Gate().Wait()
	return err
}

type echoOptions struct {
	linger time.Duration
	every  time.Duration
}

func newEchoCommand(opts *rootOptions) *cobra.Command {
	var echoOpts echoOptions

	cmd := &cobra.Command{
		Use:   "echo [OPTIONS]",
		Short: "Send stdin lines over the device's WebSocket and print what comes back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(cmd, opts, echoOpts)
		},
	}
	flags := cmd.Flags()
	flags.DurationVar(&echoOpts.linger, "linger", time.Second, "How long to wait for echoes after the input ends")
	flags.DurationVar(&echoOpts.every, "rate", 0, "Minimum time between two sent lines (0 sends as fast as input arrives)")
	return cmd
}

func runEcho(cmd *cobra.Command, opts *rootOptions, echoOpts echoOptions) error {
	ctx := cmd.Context()

	limit := rate.Inf
	if echoOpts.every > 0 {
		limit = rate.Every(echoOpts.every)
	}
	limiter := rate.NewLimiter(limit, 1)

	client := opts.client(true, false)
	defer client.Close()
	client.Handle(socket.Wiring(ctx, client, stdOutput(cmd))...)

	if err := client.Connect(ctx); err != nil {
		return err
	}

	// The scanner cannot be interrupted, so it stays outside the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runClient(gctx, client)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					select {
					case <-time.After(echoOpts.linger):
					case <-gctx.Done():
					}
					return client.CloseTransport()
				}
				// Same rule as the page's send button: nothing to send,
				// nothing sent.
				if line == "" {
					continue
				}
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				if err := client.Send(line); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the device's status events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
}

func runWatch(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client := opts.client(false, true)
	defer client.Close()
	client.Handle(socket.Wiring(ctx, client, stdOutput(cmd))...)
	client.On(socket.SourceFeed, socket.EventMessageChanged, func(msg socket.Message) {
		fmt.Fprintf(out, "message_changed: %q\n", msg.Data)
	})
	client.On(socket.SourceFeed, socket.EventMessage, func(msg socket.Message) {
		fmt.Fprintf(out, "message: %q\n", msg.Data)
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	return runClient(ctx, client)
}

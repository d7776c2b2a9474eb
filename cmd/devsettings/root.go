package main

import (
	"fmt"
	"io"

	"github.com/containerd/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kleeedolinux/devsettings/config"
	"github.com/kleeedolinux/devsettings/debug"
	"github.com/kleeedolinux/devsettings/endpoint"
	"github.com/kleeedolinux/devsettings/gate"
	"github.com/kleeedolinux/devsettings/socket"
	"github.com/kleeedolinux/devsettings/socket/transport"
)

// StatusError reports a failed command. An empty Status means the command
// already explained itself on its own output.
type StatusError struct {
	Status     string
	StatusCode int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("Status: %s, Code: %d", e.Status, e.StatusCode)
}

type rootOptions struct {
	configFile string
	page       string
	logLevel   string
	logFormat  string
	debug      bool

	cfg config.Config
	eps endpoint.Endpoints
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "devsettings [OPTIONS] COMMAND",
		Short:         "Configure a device's Wi-Fi settings and talk to its web page channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Flags())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Configuration file (YAML)")
	flags.StringVar(&opts.page, "page", "", fmt.Sprintf("Device page URL (default %q, env %s)", config.DefaultPage, config.EnvPage))
	flags.StringVarP(&opts.logLevel, "log-level", "l", "", `Set the logging level ("debug"|"info"|"warn"|"error"|"fatal")`)
	flags.StringVar(&opts.logFormat, "log-format", "", `Set the logging format ("text"|"json")`)
	flags.BoolVarP(&opts.debug, "debug", "D", false, "Enable debug mode")

	cmd.AddCommand(
		newValidateCommand(opts),
		newSubmitCommand(opts),
		newPromptCommand(opts),
		newUICommand(opts),
		newEchoCommand(opts),
		newWatchCommand(opts),
		newLocateCommand(),
	)
	return cmd
}

// load layers the configuration: file, then environment, then flags.
func (opts *rootOptions) load(flags *pflag.FlagSet) error {
	if opts.debug {
		debug.Enable()
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if flags.Changed("page") {
		cfg.Page = opts.page
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := debug.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	eps, err := cfg.Endpoints()
	if err != nil {
		return err
	}
	opts.cfg = cfg
	opts.eps = eps

	log.L.WithFields(log.Fields{
		"page":     eps.Page.String(),
		"ws":       eps.WebSocket.String(),
		"events":   eps.Events.String(),
		"settings": eps.Settings.String(),
	}).Debug("resolved device endpoints")
	return nil
}

func (opts *rootOptions) submitter() *gate.Submitter {
	return gate.NewSubmitter(opts.eps.Settings.String(), gate.WithTimeout(opts.cfg.Timeouts.Submit))
}

func (opts *rootOptions) webSocket() *transport.WebSocketTransport {
	t := opts.cfg.Timeouts
	return transport.NewWebSocketTransport(opts.eps.WebSocket.String(),
		transport.WithSubprotocols(opts.cfg.Subprotocols...),
		transport.WithHandshakeTimeout(t.Handshake),
		transport.WithWriteTimeout(t.Write),
		transport.WithReadTimeout(t.Read),
	)
}

func (opts *rootOptions) eventSource() *transport.EventSource {
	return transport.NewEventSource(opts.eps.Events.String())
}

// client builds a client over the requested channels. A nil side is left
// out entirely.
func (opts *rootOptions) client(withSocket, withFeed bool) *socket.Client {
	var (
		conn socket.Transport
		feed socket.Feed
	)
	if withSocket {
		conn = opts.webSocket()
	}
	if withFeed {
		feed = opts.eventSource()
	}
	return socket.NewClient(conn, feed)
}

// addFieldFlags binds the three form fields to flags.
func addFieldFlags(flags *pflag.FlagSet, f *gate.Fields) {
	flags.StringVar(&f.SSID, "ssid", "", gate.FieldSSID.Label()+": "+gate.FieldSSID.Hint())
	flags.StringVar(&f.Passphrase, "psw", "", gate.FieldPassphrase.Label()+": "+gate.FieldPassphrase.Hint())
	flags.StringVar(&f.Hostname, "hostname", "", gate.FieldHostname.Label()+": "+gate.FieldHostname.Hint())
}

// printIssues writes one line per failing field.
func printIssues(w io.Writer, issues []gate.Issue) {
	for _, issue := range issues {
		fmt.Fprintf(w, "%s: %s\n", issue.Field, issue.Message)
	}
}

// textOutput renders the default wiring as plain lines.
type textOutput struct {
	out io.Writer
	err io.Writer
}

func (o textOutput) AppendLine(line string) {
	fmt.Fprintln(o.out, line)
}

func (o textOutput) SetStatus(status string) {
	fmt.Fprintln(o.err, status)
}

func stdOutput(cmd *cobra.Command) textOutput {
	return textOutput{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/devsettings/mdns"
)

// factoryHostname is what a device announces before it has been configured.
const factoryHostname = "esp-device"

type locateOptions struct {
	hostname string
	timeout  time.Duration
	addr     string
}

func newLocateCommand() *cobra.Command {
	var locOpts locateOptions

	cmd := &cobra.Command{
		Use:   "locate [OPTIONS]",
		Short: "Find a configured device on the local network by its hostname",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocate(cmd, locOpts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&locOpts.hostname, "hostname", factoryHostname, "Hostname the device announces")
	flags.DurationVar(&locOpts.timeout, "timeout", 3*time.Second, "How long to wait for an answer")
	flags.StringVar(&locOpts.addr, "addr", mdns.DefaultAddr, "Where to send queries")
	_ = flags.MarkHidden("addr")
	return cmd
}

func runLocate(cmd *cobra.Command, locOpts locateOptions) error {
	r := mdns.NewResolver(mdns.WithAddr(locOpts.addr), mdns.WithTimeout(locOpts.timeout))
	ips, err := r.Lookup(cmd.Context(), locOpts.hostname)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\thttp://%s/\n", mdns.Name(locOpts.hostname), ip)
	}
	return nil
}

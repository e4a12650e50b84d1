package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stk-tools/stkctl/internal/connect"
	"github.com/stk-tools/stkctl/internal/launch"
	"github.com/stk-tools/stkctl/internal/logging"
)

type rootOptions struct {
	configPath string
	host       string
	port       int
	async      bool
	noAck      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stkctl",
		Short:         "Drive an STK instance over its Connect socket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	pf.StringVar(&opts.host, "host", "", "Connect socket host (overrides config)")
	pf.IntVar(&opts.port, "port", 0, "Connect socket port (overrides config)")
	pf.BoolVar(&opts.async, "async", false, "use asynchronous envelope framing")
	pf.BoolVar(&opts.noAck, "no-ack", false, "disable command acknowledgement")

	root.AddCommand(newSendCmd(opts))
	root.AddCommand(newReportCmd(opts))
	root.AddCommand(newLaunchCmd(opts))
	return root
}

// resolve layers config file then flags over the defaults.
func (o *rootOptions) resolve(cmd *cobra.Command, log zerolog.Logger) (connect.Config, launch.Config, error) {
	ccfg := connect.DefaultConfig()
	lcfg := launch.DefaultConfig()
	if o.configPath != "" {
		var err error
		ccfg, lcfg, err = loadConfig(o.configPath)
		if err != nil {
			return connect.Config{}, launch.Config{}, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		ccfg.Host = o.host
		lcfg.Host = o.host
	}
	if flags.Changed("port") {
		ccfg.Port = o.port
		lcfg.Port = o.port
	}
	if flags.Changed("async") {
		ccfg.Async = o.async
	}
	if flags.Changed("no-ack") {
		ccfg.Ack = !o.noAck
	}
	ccfg.Logger = log
	lcfg.Logger = log
	return ccfg, lcfg, nil
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command> [command ...]",
		Short: "Send Connect commands to a running instance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Configure(logging.ProfileRuntime)
			ccfg, _, err := opts.resolve(cmd, log)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			client := connect.New(ccfg)
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Close()
			for _, command := range args {
				if err := client.Send(command); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		reportOpts connect.ReportOptions
		returning  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Create a report, written to a file or returned via socket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.Configure(logging.ProfileRuntime)
			ccfg, _, err := opts.resolve(cmd, log)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			client := connect.New(ccfg)
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Close()

			if !returning {
				return client.Report(reportOpts)
			}
			rows, err := client.ReportReturning(reportOpts)
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Fprintln(cmd.OutOrStdout(), row)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reportOpts.ObjPath, "object", "", "object path, e.g. Satellite/ERS1 (required)")
	f.StringVar(&reportOpts.Style, "style", "", "report style name or style file path (required)")
	f.StringVar(&reportOpts.Type, "type", "", "report type: Save, Print, Display or Export")
	f.StringVar(&reportOpts.File, "file", "", "destination file for file-bound reports")
	f.StringVar(&reportOpts.AccessObject, "access-object", "", "access object path")
	f.StringVar(&reportOpts.TimePeriod, "time-period", "", "report time period clause")
	f.StringVar(&reportOpts.TimeStep, "time-step", "", "report time step clause")
	f.StringVar(&reportOpts.AdditionalData, "additional-data", "", "pre-data required by some styles")
	f.StringVar(&reportOpts.Summary, "summary", "", "summary mode clause")
	f.StringVar(&reportOpts.AllLines, "all-lines", "", "all-lines clause")
	f.BoolVar(&returning, "return", false, "return the report via socket and print rows")
	_ = cmd.MarkFlagRequired("object")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

func newLaunchCmd(opts *rootOptions) *cobra.Command {
	var commands []string
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch the application, wait for its socket, and connect",
		Long: `Starts the application (locally, or over SSH when the config file defines
[launch.ssh]), watches its diagnostics until the Connect socket is ready,
then connects. Optional --command values are sent once connected; the
instance keeps running until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.Configure(logging.ProfileRuntime)
			ccfg, lcfg, err := opts.resolve(cmd, log)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := launch.New(lcfg).Start(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			// A bind failure may have shifted the port.
			ccfg.Host = app.Endpoint.Host
			ccfg.Port = app.Endpoint.Port
			client := connect.New(ccfg)
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Close()

			for _, command := range commands {
				if err := client.Send(command); err != nil {
					var nack *connect.NackError
					if errors.As(err, &nack) {
						app.DumpErrors()
					}
					return err
				}
			}

			log.Info().Str("addr", app.Endpoint.Addr()).Msg("ready, press ctrl-c to stop")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&commands, "command", nil, "Connect command to send once ready (repeatable)")
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

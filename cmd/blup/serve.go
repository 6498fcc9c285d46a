package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blup/internal/groutine"
	"github.com/srg/blup/internal/peripheral"
	"github.com/srg/blup/internal/sample"
	"github.com/srg/blup/internal/stack/goble"
	"github.com/srg/blup/pkg/config"
)

// newStack creates the BLE stack (can be overridden in tests)
var newStack = func(cfg *config.Config, logger *logrus.Logger) peripheral.Stack {
	return goble.New(logger,
		goble.WithHCI(cfg.HCIDevice),
		goble.WithStartGrace(cfg.AdvertiseStartGrace),
	)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the uppercase peripheral",
		Long: `Bring up the Bluetooth stack, publish the uppercase service and advertise
until interrupted.

A failure to initialize Bluetooth exits with an error. A failure to start
advertising is logged and the peripheral keeps running, undiscoverable.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringP("name", "n", "", "Advertised device name (default from config: periferico)")
	cmd.Flags().Int("hci", 0, "HCI device index (Linux)")
	cmd.Flags().Bool("strict-offset", false, "Reject writes with a nonzero offset")
	cmd.Flags().Bool("samples", false, "Run the simulated heart-rate and battery sources")
	cmd.Flags().BoolP("events", "e", false, "Print peripheral events to stdout")
	return cmd
}

// applyServeFlags overrides config values with flags given on the command line.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.DeviceName, _ = flags.GetString("name")
	}
	if flags.Changed("hci") {
		cfg.HCIDevice, _ = flags.GetInt("hci")
	}
	if flags.Changed("strict-offset") {
		cfg.StrictOffset, _ = flags.GetBool("strict-offset")
	}
	if flags.Changed("samples") {
		cfg.Samples.Enabled, _ = flags.GetBool("samples")
	}
	return cfg.Validate()
}

func peripheralOptions(cfg *config.Config) []peripheral.Option {
	opts := []peripheral.Option{
		peripheral.WithName(cfg.DeviceName),
		peripheral.WithStrictOffset(cfg.StrictOffset),
		peripheral.WithEventBuffer(cfg.EventBuffer),
	}
	if cfg.Samples.Enabled {
		opts = append(opts, peripheral.WithSampleSources(cfg.Samples.Interval, sample.NewHeartRate(), sample.NewBattery()))
	}
	return opts
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	p := peripheral.New(newStack(cfg, logger), logger, peripheralOptions(cfg)...)

	printEvents, _ := cmd.Flags().GetBool("events")
	var printed <-chan struct{}
	if printEvents {
		printed = groutine.Go(ctx, "event-printer", func(ctx context.Context) {
			out := cmd.OutOrStdout()
			streamEvents(ctx, out, p.Events(), colorEnabled(out))
		})
	}

	if err := p.Start(ctx); err != nil {
		var be *peripheral.BringupError
		if !errors.As(err, &be) || be.Fatal() {
			stop()
			return fmt.Errorf("failed to start peripheral: %w", err)
		}
		logger.WithError(err).Warn("Continuing without advertising")
	}

	err = p.Run(ctx)
	if printed != nil {
		<-printed
	}
	return err
}

// streamEvents prints events until ctx is done.
func streamEvents(ctx context.Context, w io.Writer, events <-chan peripheral.Event, colored bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			fmt.Fprintln(w, formatEvent(e, colored))
		}
	}
}

var eventColors = map[peripheral.EventKind]*color.Color{
	peripheral.EventConnected:        color.New(color.FgGreen),
	peripheral.EventDisconnected:     color.New(color.FgYellow),
	peripheral.EventConnectionFailed: color.New(color.FgRed),
	peripheral.EventNotifyFailed:     color.New(color.FgRed),
	peripheral.EventWrite:            color.New(color.FgCyan),
	peripheral.EventNotifySent:       color.New(color.FgBlue),
}

// formatEvent renders one event as a single line.
func formatEvent(e peripheral.Event, colored bool) string {
	kind := fmt.Sprintf("%-17s", e.Kind.String())
	line := e.Time.Format("15:04:05.000") + " " + paint(eventColors[e.Kind], kind, colored)
	if e.Conn != "" {
		line += " conn=" + string(e.Conn)
	}

	switch e.Kind {
	case peripheral.EventConnectionFailed, peripheral.EventDisconnected:
		line += fmt.Sprintf(" status=0x%02x", e.Status)
	case peripheral.EventCCCChanged:
		line += fmt.Sprintf(" value=0x%04x", e.Value)
	case peripheral.EventWrite, peripheral.EventNotifySent:
		line += fmt.Sprintf(" data=%q", e.Data)
	case peripheral.EventSample:
		line += fmt.Sprintf(" source=%s data=% x", e.Source, e.Data)
	}
	if e.Err != nil {
		line += " err=" + e.Err.Error()
	}
	return line
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/extropian/motionsync/internal/cliconfig"
	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/link"
	"github.com/extropian/motionsync/pkg/motionsync"
)

func newSimulateCmd(c *cli) *cobra.Command {
	var (
		count  int
		silent []string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Record one session from simulated devices",
		Long: `Runs the full capture pipeline over in-memory devices. Once capture has
started on every device the first slot signals its threshold, the session is
frozen, drained and written to the configured sink.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < domain.MinDevices || count > domain.MaxSlots {
				return fmt.Errorf("--devices must be between %d and %d", domain.MinDevices, domain.MaxSlots)
			}
			c.cfg.Link = cliconfig.LinkMemory
			c.cfg.Devices = map[string]string{}
			for _, s := range domain.Slots[:count] {
				c.cfg.Devices[s.String()] = "SIM-" + s.String()
			}
			opts := map[string]link.DeviceOptions{}
			for _, name := range silent {
				s, err := domain.ParseSlot(name)
				if err != nil {
					return err
				}
				opts["SIM-"+s.String()] = link.DeviceOptions{Silent: true}
			}
			return c.simulate(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&count, "devices", domain.MaxSlots, "number of simulated devices (2-4)")
	cmd.Flags().StringSliceVar(&silent, "silent", nil, "slots whose device never answers the drain command")
	return cmd
}

func (c *cli) simulate(ctx context.Context, opts map[string]link.DeviceOptions) error {
	if err := c.validate(); err != nil {
		return err
	}
	assignments, err := c.cfg.Assignments()
	if err != nil {
		return err
	}

	logger := c.logger()
	fleet := simulatedFleet(assignments, c.cfg.ExpectedPackets, opts)

	sink, closeSink, err := buildSink(c.cfg, logger)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer closeSink()

	rcfg, err := c.recorderConfig()
	if err != nil {
		return err
	}
	rcfg.AllowRestart = false
	recOpts := append([]motionsync.Option{motionsync.WithLogger(logger)}, c.retention()...)
	rec, err := motionsync.New(fleet, sink, rcfg, recOpts...)
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}

	trigger := assignments[0].Slot
	return c.run(ctx, rec, func(ctx context.Context) {
		if !awaitCapture(ctx, fleet, assignments) {
			return
		}
		d, ok := fleet.Device(trigger)
		if !ok {
			return
		}
		c.log.Info().Str("slot", trigger.String()).Msg("simulating threshold")
		d.EmitThreshold()
	})
}

// awaitCapture waits until every assigned device has received the start
// command.
func awaitCapture(ctx context.Context, fleet *link.Fleet, assignments []cliconfig.Assignment) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		started := 0
		for _, a := range assignments {
			if d, ok := fleet.Device(a.Slot); ok && d.Received(domain.CommandStartIMU) {
				started++
			}
		}
		if started == len(assignments) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

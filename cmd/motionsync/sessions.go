package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/extropian/motionsync/internal/adapters/fs"
	"github.com/extropian/motionsync/internal/adapters/sqlite"
	"github.com/extropian/motionsync/internal/cliconfig"
)

func newSessionsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions (file and sqlite sinks)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.listSessions(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (c *cli) listSessions(ctx context.Context, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch c.cfg.Sink {
	case cliconfig.SinkFile:
		sink := fs.NewSessionFileSink(c.cfg.OutputDir)
		ids, err := sink.List()
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tSTARTED\tSLOTS\tSAMPLES")
		for _, id := range ids {
			doc, err := sink.Load(id)
			if err != nil {
				c.log.Warn().Str("session", id).Err(err).Msg("unreadable session file")
				continue
			}
			samples := 0
			for _, s := range doc.Samples {
				samples += len(s)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", doc.ID, doc.StartTime.Format("2006-01-02 15:04:05.000"), len(doc.Devices), samples)
		}
		return nil

	case cliconfig.SinkSQLite:
		store, err := sqlite.Open(c.cfg.SQLitePath, c.logger())
		if err != nil {
			return err
		}
		defer store.Close()
		summaries, err := store.Sessions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tSTARTED\tSLOTS\tSAMPLES")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.ID, s.StartedAt.Format("2006-01-02 15:04:05.000"), s.SlotCount, s.SampleCount)
		}
		return nil
	}
	return fmt.Errorf("listing sessions is not supported for the %s sink", c.cfg.Sink)
}

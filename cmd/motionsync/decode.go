package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/extropian/motionsync/internal/codec"
	"github.com/extropian/motionsync/internal/domain"
)

func newDecodeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode raw frame dumps into JSON lines",
		Long: `Reads files of concatenated 221-byte frames and prints one JSON object per
frame. Malformed frames are reported on stderr and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bad int
			for _, name := range args {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				stats, err := decodeDump(f, name, cmd.OutOrStdout(), c.log)
				f.Close()
				if err != nil {
					return fmt.Errorf("decode %s: %w", name, err)
				}
				bad += stats.Rejected
				c.log.Info().
					Str("file", name).
					Int("frames", stats.Frames).
					Int("rejected", stats.Rejected).
					Int("dropped_samples", stats.Dropped).
					Msg("decoded")
			}
			if bad > 0 {
				return fmt.Errorf("%d malformed frames", bad)
			}
			return nil
		},
	}
}

type decodedFrame struct {
	File     string                `json:"file"`
	Frame    int                   `json:"frame"`
	Sequence byte                  `json:"sequence"`
	Samples  []domain.SensorSample `json:"samples"`
}

type decodeStats struct {
	Frames   int
	Rejected int
	Dropped  int
}

// decodeDump decodes every full frame in r and writes it to w as a JSON line.
// A trailing partial frame counts as rejected.
func decodeDump(r io.Reader, name string, w io.Writer, log zerolog.Logger) (decodeStats, error) {
	var stats decodeStats
	enc := json.NewEncoder(w)
	buf := make([]byte, domain.PacketLength)

	for i := 0; ; i++ {
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			log.Warn().Str("file", name).Int("frame", i).Int("bytes", n).Msg("trailing partial frame")
			stats.Rejected++
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		frame, err := codec.DecodeFrame(buf)
		if err != nil {
			log.Warn().Str("file", name).Int("frame", i).Err(err).Msg("frame rejected")
			stats.Rejected++
			continue
		}
		stats.Frames++
		stats.Dropped += frame.Dropped

		samples := frame.Samples
		if samples == nil {
			samples = []domain.SensorSample{}
		}
		if err := enc.Encode(decodedFrame{File: name, Frame: i, Sequence: frame.Sequence, Samples: samples}); err != nil {
			return stats, err
		}
	}
}

// Package influx writes session samples to InfluxDB as time series points.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// Measurement is the InfluxDB measurement name for IMU samples.
const Measurement = "imu_sample"

// PointWriter is the subset of api.WriteAPIBlocking used by Sink.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Config configures an InfluxDB connection.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// TickUnit is the duration of one device timestamp tick. Point times are
	// the session start plus tick*TickUnit. Defaults to 1ms.
	TickUnit time.Duration
}

// Sink implements ports.SessionSink. Each sample becomes one point tagged
// with session, slot and device.
type Sink struct {
	writer   PointWriter
	tickUnit time.Duration
	logger   ports.Logger
}

// NewSink creates a sink on top of writer.
func NewSink(writer PointWriter, tickUnit time.Duration, logger ports.Logger) *Sink {
	if tickUnit <= 0 {
		tickUnit = time.Millisecond
	}
	return &Sink{writer: writer, tickUnit: tickUnit, logger: logger}
}

// Dial creates a client for cfg and returns a sink using its blocking write
// API. The returned close function releases the client.
func Dial(cfg Config, logger ports.Logger) (*Sink, func(), error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, nil, fmt.Errorf("%w: influx url, org and bucket are required", domain.ErrInvalidConfig)
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPIBlocking(cfg.Org, cfg.Bucket)
	return NewSink(writeAPI, cfg.TickUnit, logger), client.Close, nil
}

// Persist writes all samples of the session, one write per slot.
func (s *Sink) Persist(ctx context.Context, p *domain.SessionPayload) error {
	for _, rec := range p.Slots {
		if len(rec.Samples) == 0 {
			continue
		}
		points := make([]*write.Point, 0, len(rec.Samples))
		for _, smp := range rec.Samples {
			points = append(points, s.point(p, rec, smp))
		}
		if err := s.writer.WritePoint(ctx, points...); err != nil {
			return fmt.Errorf("write %s: %w", rec.Slot, err)
		}
		s.logger.Debug("points written",
			ports.String("session", p.ID),
			ports.Stringer("slot", rec.Slot),
			ports.Int("points", len(points)),
		)
	}
	return nil
}

func (s *Sink) point(p *domain.SessionPayload, rec domain.SlotRecord, smp domain.SensorSample) *write.Point {
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{
			"session": p.ID,
			"slot":    rec.Slot.String(),
			"device":  rec.DeviceID,
		},
		map[string]interface{}{
			"tick":    int64(smp.Timestamp),
			"accel_x": smp.Accel.X,
			"accel_y": smp.Accel.Y,
			"accel_z": smp.Accel.Z,
			"gyro_x":  smp.Gyro.X,
			"gyro_y":  smp.Gyro.Y,
			"gyro_z":  smp.Gyro.Z,
			"mag_x":   smp.Mag.X,
			"mag_y":   smp.Mag.Y,
			"mag_z":   smp.Mag.Z,
		},
		p.StartedAt.Add(time.Duration(smp.Timestamp)*s.tickUnit),
	)
}
